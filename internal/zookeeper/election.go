package zookeeper

import (
	"fmt"
	"time"

	"github.com/go-zookeeper/zk"
)

const electionRoot = "/mercato/jobs"

// Elector 基于 ZooKeeper 临时节点做任务级主备选举。
// warehouse-service 可能部署多实例，库存快照聚合任务只允许一个实例跑；
// 拿不到节点的实例跳过本轮，持有者断连后节点自动消失，别的实例接手。
type Elector struct {
	conn *zk.Conn
	path string
}

// NewElector 连接 ZooKeeper 并确保任务节点的父路径存在。
func NewElector(addrs []string, jobName string) (*Elector, error) {
	conn, _, err := zk.Connect(addrs, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to zookeeper: %w", err)
	}

	for _, path := range []string{"/mercato", electionRoot} {
		if _, err := conn.Create(path, []byte{}, 0, zk.WorldACL(zk.PermAll)); err != nil && err != zk.ErrNodeExists {
			conn.Close()
			return nil, fmt.Errorf("failed to create node %s: %w", path, err)
		}
	}

	return &Elector{
		conn: conn,
		path: electionRoot + "/" + jobName,
	}, nil
}

// IsLeader 尝试创建临时节点来认领任务。
// 返回 true 表示本实例当前是任务的持有者。重复调用是安全的：
// 节点已由本会话持有时 Create 返回 ErrNodeExists，需要再核对持有者。
func (e *Elector) IsLeader(nodeID string) (bool, error) {
	_, err := e.conn.Create(e.path, []byte(nodeID), zk.FlagEphemeral, zk.WorldACL(zk.PermAll))
	if err == nil {
		return true, nil
	}
	if err != zk.ErrNodeExists {
		return false, fmt.Errorf("failed to create election node: %w", err)
	}

	data, _, err := e.conn.Get(e.path)
	if err != nil {
		if err == zk.ErrNoNode {
			// 持有者刚好退出，下一轮再竞争
			return false, nil
		}
		return false, fmt.Errorf("failed to read election node: %w", err)
	}
	return string(data) == nodeID, nil
}

// Resign 主动放弃任务持有权。
func (e *Elector) Resign() error {
	err := e.conn.Delete(e.path, -1)
	if err != nil && err != zk.ErrNoNode {
		return fmt.Errorf("failed to delete election node: %w", err)
	}
	return nil
}

func (e *Elector) Close() {
	e.conn.Close()
}
