package dispatcher

import "time"

// Subject：被 Dispatcher 驱动的数据源
//
// Start/Stop/Join 不返回错误：Stop/Join 可能在异常退出路径上被调用
type Subject interface {
	Start()
	Stop()
	Join()
	Eof() bool
	// Dispatch 处理一个单位的数据，有数据被处理返回 true
	Dispatch() bool
	// PeekDateTime 下一个单位的时间；实时源返回 ok=false
	PeekDateTime() (t time.Time, ok bool)
}

// Registry 可注册 subject 的一方
type Registry interface {
	AddSubject(s Subject)
}

// Registrant 需要在注册时做额外动作的 subject（比如把依赖的 client 一起注册）
type Registrant interface {
	OnDispatcherRegistered(r Registry)
}
