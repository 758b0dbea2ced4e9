package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JoeShih716/go-atm-ledger/internal/app/core/domain"
)

// ErrTaskPanicked worker 執行交易時 panic
var ErrTaskPanicked = errors.New("executor: task panicked")

// Runner 執行單筆交易 (CoreUseCase 實作)
type Runner interface {
	Execute(ctx context.Context, op *domain.Operation) error
}

// Callback 交易完成後呼叫，每個 Task 只會呼叫一次
type Callback func(op *domain.Operation, err error)

// ExecutorOptions Executor 設定
type ExecutorOptions struct {
	// Workers: 同時執行的 worker 數量
	Workers int
	// QueueSize: 輸送帶 buffer 大小
	QueueSize int
}

// Task 一筆已送出的交易，呼叫端可以 Wait 或註冊 Callback 取得結果
type Task struct {
	Op *domain.Operation

	ctx         context.Context
	submittedAt time.Time
	callbacks   []Callback
	done        chan struct{}
	err         error
}

// Done 交易完成 (成功或失敗) 時關閉
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err 回傳交易結果；Done 關閉前呼叫會回傳 nil
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait 等待交易完成
//
// ctx 結束只代表呼叫端不再等待，交易本身仍會執行完畢
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Task) finish(err error) {
	t.err = err
	close(t.done)
}

// Executor 在背景 worker 執行交易，結果一定會回到 Task (不會像 fire-and-forget 一樣被吃掉)
//
// Submit(等待輸送帶) -> Channel -> worker -> Runner.Execute -> Task.done -> Callback
type Executor struct {
	runner  Runner
	logger  *zap.Logger
	workers int
	// 輸送帶 負責接收交易
	queue chan *Task

	mu     sync.RWMutex
	closed bool

	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
	stopped   chan struct{}
}

// NewExecutor 建立 Executor，需要呼叫 Start 才會開始處理
func NewExecutor(runner Runner, opts ExecutorOptions, logger *zap.Logger) *Executor {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize < 0 {
		opts.QueueSize = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		runner:  runner,
		logger:  logger,
		workers: opts.Workers,
		queue:   make(chan *Task, opts.QueueSize),
		stopped: make(chan struct{}),
	}
}

// Start 啟動 worker (非同步)；ctx 結束時等同呼叫 Close
func (e *Executor) Start(ctx context.Context) {
	e.startWorkers()
	go func() {
		select {
		case <-ctx.Done():
			e.Close()
		case <-e.stopped:
		}
	}()
}

func (e *Executor) startWorkers() {
	e.startOnce.Do(func() {
		e.wg.Add(e.workers)
		for i := 0; i < e.workers; i++ {
			go e.run()
		}
	})
}

// Submit 送出一筆交易
//
// 參數:
//
//	ctx: 只用於等待輸送帶有空位；交易本身使用 context.WithoutCancel(ctx) 執行
//	op: 交易請求
//	callbacks: 完成後呼叫
//
// 回傳:
//
//	*Task: 可等待的交易
//	error: op 為 nil (ErrInvalidOperation)、ErrExecutorClosed 或 ctx 錯誤 (此時交易沒有送出)
func (e *Executor) Submit(ctx context.Context, op *domain.Operation, callbacks ...Callback) (*Task, error) {
	if op == nil {
		return nil, fmt.Errorf("%w: nil operation", domain.ErrInvalidOperation)
	}
	task := &Task{
		Op:          op,
		ctx:         context.WithoutCancel(ctx),
		submittedAt: time.Now(),
		callbacks:   callbacks,
		done:        make(chan struct{}),
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, domain.ErrExecutorClosed
	}
	select {
	case e.queue <- task:
		return task, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Do 送出並等待結果
func (e *Executor) Do(ctx context.Context, op *domain.Operation) error {
	task, err := e.Submit(ctx, op)
	if err != nil {
		return err
	}
	return task.Wait(ctx)
}

// Close 停止接收新交易，處理完輸送帶上剩下的交易後返回
func (e *Executor) Close() {
	e.closeOnce.Do(func() {
		// 沒有 Start 過也要把已送出的交易跑完
		e.startWorkers()

		e.mu.Lock()
		e.closed = true
		close(e.queue)
		e.mu.Unlock()

		e.wg.Wait()
		close(e.stopped)
	})
}

func (e *Executor) run() {
	defer e.wg.Done()
	for task := range e.queue {
		e.process(task)
	}
}

// process 處理單筆交易並回傳結果
func (e *Executor) process(task *Task) {
	err := e.execute(task)
	task.finish(err)

	if err != nil {
		e.logger.Error("transaction failed",
			zap.Stringer("ref_id", task.Op.RefID),
			zap.Stringer("type", task.Op.Type),
			zap.Int64("from", task.Op.From),
			zap.Int64("to", task.Op.To),
			zap.Stringer("amount", task.Op.Amount),
			zap.String("error_code", domain.ErrorCode(err)),
			zap.Duration("elapsed", time.Since(task.submittedAt)),
			zap.Error(err))
	} else {
		e.logger.Debug("transaction committed",
			zap.Stringer("ref_id", task.Op.RefID),
			zap.Stringer("type", task.Op.Type),
			zap.Duration("elapsed", time.Since(task.submittedAt)))
	}

	for _, cb := range task.callbacks {
		e.invoke(cb, task)
	}
}

func (e *Executor) execute(task *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}
	}()
	return e.runner.Execute(task.ctx, task.Op)
}

func (e *Executor) invoke(cb Callback, task *Task) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("transaction callback panicked",
				zap.Stringer("ref_id", task.Op.RefID),
				zap.Any("panic", r))
		}
	}()
	cb(task.Op, task.err)
}
