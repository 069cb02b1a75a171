// Package xfanout 提供频道化的发布订阅扇出。
//
// 两种实现共享同一个 [PubSub] 接口：
//   - [NewLocal]: 进程内订阅表，发布即投递，跨进程不可见。
//   - [NewRedis]: Redis Pub/Sub 中继。每个节点只持有一条 redis
//     订阅连接，收到的消息再扇出给本地订阅者，节点数与订阅者
//     数量解耦。
//
// 投递语义为尽力而为：订阅者缓冲满时该订阅者丢弃消息（可通过
// [Subscription.Dropped] 观测），不阻塞发布方也不影响其他订阅者。
// 向没有订阅者的频道发布是成功的空操作。
package xfanout
