package gocbbridge

import (
	"sync"
	"time"
)

func (suite *UnitTestSuite) TestBlockingCompletion() {
	done := newBlockingCompletion[int]()
	suite.Assert().False(done.isResolved())

	go func() {
		time.Sleep(10 * time.Millisecond)
		done.set(42)
	}()

	suite.Assert().Equal(42, done.get())
	suite.Assert().True(done.isResolved())
	suite.Assert().Equal(uint32(1), done.setCount())
}

func (suite *UnitTestSuite) TestBlockingCompletionSetBeforeGet() {
	done := newBlockingCompletion[string]()

	// A set with nobody waiting must not block the completing goroutine.
	suite.Require().True(done.set("first"))
	suite.Assert().False(done.set("second"))

	suite.Assert().Equal("first", done.get())
	suite.Assert().Equal(uint32(2), done.setCount())
}

func (suite *UnitTestSuite) TestCallbackCompletion() {
	var delivered []int
	done := newCallbackCompletion(func(v int) {
		delivered = append(delivered, v)
	})

	suite.Require().True(done.set(1))
	suite.Assert().Equal([]int{1}, delivered)
	suite.Assert().False(done.set(2))
	suite.Assert().Equal([]int{1}, delivered)
	suite.Assert().True(done.isResolved())

	suite.Assert().Panics(func() {
		done.get()
	})
}

func (suite *UnitTestSuite) TestCompletionRacingSets() {
	var deliveries int
	var lock sync.Mutex
	done := newCallbackCompletion(func(bool) {
		lock.Lock()
		deliveries++
		lock.Unlock()
	})

	var wg sync.WaitGroup
	wins := make(chan bool, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wins <- done.set(true)
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for win := range wins {
		if win {
			won++
		}
	}
	suite.Assert().Equal(1, won)
	suite.Assert().Equal(1, deliveries)
	suite.Assert().Equal(uint32(16), done.setCount())
}
