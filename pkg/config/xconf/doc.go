// Package xconf 提供基于 koanf 的配置加载。
//
// 支持 YAML 与 JSON 两种格式，按文件扩展名自动检测；环境变量可以
// 覆盖文件中的值，便于容器化部署时注入差异配置。
//
// 用法：
//
//	cfg, err := xconf.New("config.yaml", xconf.WithEnvPrefix("APEX_"))
//	if err != nil {
//	    return err
//	}
//
//	var quota QuotaConfig
//	if err := cfg.Unmarshal("quota", &quota); err != nil {
//	    return err
//	}
//
// 环境变量 APEX_QUOTA__BACKEND=local 覆盖键 quota.backend，
// 双下划线映射为键分隔符。配置加载后不再变化，不提供热更新。
package xconf
