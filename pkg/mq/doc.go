// Package mq 提供消息扇出相关的子包。
//
// 子包列表：
//   - xfanout: 频道化发布订阅，Redis Pub/Sub 中继与进程内两种后端
//
// 设计原则：
//   - 统一的发布订阅接口，后端可按部署形态切换
//   - 尽力而为投递，慢订阅者不拖累发布方
//   - 每个节点一条中继连接，订阅者数量与连接数解耦
package mq
