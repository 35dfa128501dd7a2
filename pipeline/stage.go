package pipeline

import (
	"context"
	"errors"
	"fmt"
)

// Stage 流水线中的一个具名步骤
type Stage[I, O any] interface {
	Name() string
	Run(ctx context.Context, in I) (O, error)
}

type funcStage[I, O any] struct {
	name string
	fn   func(context.Context, I) (O, error)
}

func (s funcStage[I, O]) Name() string { return s.name }

func (s funcStage[I, O]) Run(ctx context.Context, in I) (O, error) { return s.fn(ctx, in) }

// New 以函数构造阶段
func New[I, O any](name string, fn func(context.Context, I) (O, error)) Stage[I, O] {
	return funcStage[I, O]{name: name, fn: fn}
}

// composite 标记组合阶段；组合阶段本身不计时，由其子阶段各自记录
type composite interface {
	isComposite()
}

type chain[A, B, C any] struct {
	first  Stage[A, B]
	second Stage[B, C]
}

func (c chain[A, B, C]) Name() string { return c.first.Name() + ">" + c.second.Name() }

func (c chain[A, B, C]) isComposite() {}

func (c chain[A, B, C]) Run(ctx context.Context, in A) (C, error) {
	mid, err := runStage(ctx, c.first, in)
	if err != nil {
		var zero C
		return zero, err
	}
	return runStage(ctx, c.second, mid)
}

// Then 顺序组合两个阶段：first 的输出作为 second 的输入
func Then[A, B, C any](first Stage[A, B], second Stage[B, C]) Stage[A, C] {
	return chain[A, B, C]{first: first, second: second}
}

// =============================================================================
// ❌ 失败分类
// =============================================================================

// StageError 硬失败，携带失败阶段名
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("stage %s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

type softError struct{ err error }

func (e *softError) Error() string { return e.err.Error() }

func (e *softError) Unwrap() error { return e.err }

// Soft 将 err 标记为软失败：流水线记录后继续执行
func Soft(err error) error {
	if err == nil {
		return nil
	}
	return &softError{err: err}
}

// IsSoft 判断 err 是否为软失败
func IsSoft(err error) bool {
	var s *softError
	return errors.As(err, &s)
}

// FailedStage 返回硬失败的阶段名；err 不是 *StageError 时返回空字符串
func FailedStage(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
