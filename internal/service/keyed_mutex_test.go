package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	k := newKeyedMutex()

	// 无同步的计数器：缺少串行化时 -race 和丢失的自增都会暴露问题
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("pair:a1|b1")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 64, counter)
}

func TestKeyedMutex_IndependentKeysDoNotBlock(t *testing.T) {
	k := newKeyedMutex()

	unlockA := k.Lock("conversation:c1")

	// 持有 c1 锁时获取 c2 的锁必须立即成功
	done := make(chan struct{})
	go func() {
		unlockB := k.Lock("conversation:c2")
		unlockB()
		close(done)
	}()
	<-done

	unlockA()
}

func TestKeyedMutex_ReleasesEntriesWhenUnused(t *testing.T) {
	k := newKeyedMutex()

	unlock1 := k.Lock("k1")
	unlock2 := k.Lock("k2")
	unlock1()
	unlock2()

	// 引用计数归零后键被回收，长期运行不累积条目
	k.mu.Lock()
	remaining := len(k.locks)
	k.mu.Unlock()
	assert.Equal(t, 0, remaining)
}
