package ownerexecutor_test

import (
	"context"
	"fmt"

	ownerexecutor "github.com/Swind/go-owner-executor"
)

// ExampleNew demonstrates owner-inline execution and deferred foreign work.
func ExampleNew() {
	exec, err := ownerexecutor.New(ownerexecutor.CurrentOwner(), &ownerexecutor.ExecutorConfig{Lanes: 2})
	if err != nil {
		panic(err)
	}
	defer exec.Close()

	// The owner runs its own submissions immediately.
	_, _ = exec.Submit(func(ctx context.Context) {
		fmt.Println("inline on the owner")
	})

	// Work from another goroutine waits for the owner to drain.
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = exec.SubmitWithTraits(func(ctx context.Context) {
			fmt.Println("background lane 1")
		}, ownerexecutor.TraitsLane(1))
		_, _ = exec.SubmitWithTraits(func(ctx context.Context) {
			fmt.Println("urgent lane 0")
		}, ownerexecutor.TraitsLane(0))
	}()
	<-done

	fmt.Println("drained", exec.DrainAll())

	// Output:
	// inline on the owner
	// urgent lane 0
	// background lane 1
	// drained 2
}

// ExampleCall demonstrates reading owner state from another goroutine.
func ExampleCall() {
	ctx := context.Background()
	exec, err := ownerexecutor.NewDedicated(ctx, nil)
	if err != nil {
		panic(err)
	}
	defer exec.Close()

	counter := 0
	for range 3 {
		_, _ = exec.Submit(func(ctx context.Context) { counter++ })
	}

	got, err := ownerexecutor.Call(ctx, exec, func(ctx context.Context) (int, error) {
		return counter, nil
	})
	fmt.Println(got, err)

	// Output:
	// 3 <nil>
}

// ExampleReentrantExecutor demonstrates a task waiting on its own executor.
func ExampleReentrantExecutor() {
	ctx := context.Background()
	exec, err := ownerexecutor.NewDedicatedReentrant(ctx, nil)
	if err != nil {
		panic(err)
	}
	defer exec.Close()

	err = exec.ExecuteBlocking(ctx, func(ctx context.Context) {
		inner := 0
		_ = exec.ExecuteBlocking(ctx, func(ctx context.Context) { inner = 42 })
		fmt.Println("inner result", inner, "depth", exec.ReentrancyDepth())
	})
	fmt.Println("outer error", err)

	// Output:
	// inner result 42 depth 1
	// outer error <nil>
}
