// Copyright 2025 Transit Beacon Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package serrors provides errors with additional log context in the form of
// key value pairs. The package provides wrapping methods. The returned errors
// support the standard Is and As functionality: for any error err created
// here, errors.Is(err, err) is true, and for any err which wraps err2 or has
// err2 as msg, errors.Is(err, err2) is true.
package serrors

import (
	"errors"
	"fmt"
	"strings"
)

type errOrMsg struct {
	str string
	err error
}

type basicError struct {
	msg    errOrMsg
	logCtx []interface{}
	cause  error
}

func (e basicError) Error() string {
	var s []string
	s = append(s, e.msgString())
	for i := 0; i+1 < len(e.logCtx); i += 2 {
		s = append(s, fmt.Sprintf("%s=\"%v\"", e.logCtx[i], e.logCtx[i+1]))
	}
	joined := strings.Join(s, " ")
	if e.cause != nil {
		return joined + ": " + e.cause.Error()
	}
	return joined
}

func (e basicError) Is(err error) bool {
	switch other := err.(type) {
	case basicError:
		return e.msg == other.msg
	default:
		if e.msg.err != nil {
			return e.msg.err == err
		}
		return false
	}
}

func (e basicError) As(as interface{}) bool {
	if e.msg.err != nil {
		return errors.As(e.msg.err, as)
	}
	return false
}

func (e basicError) Unwrap() error {
	return e.cause
}

func (e basicError) msgString() string {
	if e.msg.err != nil {
		return e.msg.err.Error()
	}
	return e.msg.str
}

// New creates a new error with the given message and context. Without context
// it returns a plain errors.New error, which makes it suitable for sentinel
// error values.
func New(msg string, logCtx ...interface{}) error {
	if len(logCtx) == 0 {
		return errors.New(msg)
	}
	return &basicError{
		msg:    errOrMsg{str: msg},
		logCtx: logCtx,
	}
}

// WithCtx returns an error that is the same as the given error but carries
// the additional context. The returned error supports Is and Is(err) returns
// true.
func WithCtx(err error, logCtx ...interface{}) error {
	return basicError{
		msg:    errOrMsg{err: err},
		logCtx: logCtx,
	}
}

// Wrap wraps the cause with the msg error and adds context to the resulting
// error. The returned error supports Is; Is(msg) and Is(cause) return true.
func Wrap(msg, cause error, logCtx ...interface{}) error {
	return basicError{
		msg:    errOrMsg{err: msg},
		cause:  cause,
		logCtx: logCtx,
	}
}

// WrapStr wraps the cause with an error that has msg in the error message and
// adds the additional context. The returned error supports Is and Is(cause)
// returns true.
func WrapStr(msg string, cause error, logCtx ...interface{}) error {
	return basicError{
		msg:    errOrMsg{str: msg},
		cause:  cause,
		logCtx: logCtx,
	}
}
