// Copyright 2026 Radiocosmo Authors. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package shapecheck

import (
	"errors"
	"runtime"
	"testing"
)

func errorCaller(calldepth int, err error) (e *Error, file string, line int) {
	_, file, line, ok := runtime.Caller(calldepth + 1)
	if !ok {
		panic("not ok")
	}
	return NewError(calldepth+1, err), file, line
}

func TestError(t *testing.T) {
	e := errors.New("hello world")
	err, file, line := errorCaller(1, e)
	if got, want := err.Err, e; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := file, err.File; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := line, err.Line; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestAxis(t *testing.T) {
	Axis(1, 0, 3) // ok
	Axis(1, 2, 3) // ok
	for _, axis := range []int{-1, 3, 100} {
		func() {
			defer func() {
				if e := recover(); e == nil {
					t.Errorf("axis %d: expected panic", axis)
				} else if _, ok := e.(*Error); !ok {
					t.Errorf("axis %d: panic value %v is not a *Error", axis, e)
				}
			}()
			Axis(1, axis, 3)
		}()
	}
}
