// Package errors 提供遊戲伺服器的錯誤分類
//
// AppError.Message 會直接放進協議回應的 error 欄位，
// 因此預定義錯誤的訊息就是客戶端看到的字串。
package errors

import (
	"errors"
	"fmt"
)

// 定義錯誤碼
const (
	// ErrCodeRoomNotFound 房間不存在
	ErrCodeRoomNotFound = "ROOM_NOT_FOUND"
	// ErrCodeRoomFull 房間已滿
	ErrCodeRoomFull = "ROOM_FULL"
	// ErrCodeAlreadyInRoom 連線已綁定房間
	ErrCodeAlreadyInRoom = "ALREADY_IN_ROOM"
	// ErrCodeRoomLimit 房間數量達到上限
	ErrCodeRoomLimit = "ROOM_LIMIT"
	// ErrCodeRateLimited 請求過於頻繁
	ErrCodeRateLimited = "RATE_LIMITED"
	// ErrCodeInvalidInput 無效輸入
	ErrCodeInvalidInput = "INVALID_INPUT"
	// ErrCodeInternal 內部錯誤
	ErrCodeInternal = "INTERNAL_ERROR"
	// ErrCodeUnavailable 外部服務不可用
	ErrCodeUnavailable = "SERVICE_UNAVAILABLE"
)

// AppError 應用程式錯誤
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Err     error  `json:"-"`
}

// Error 實現 error 介面
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 實現 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 以錯誤碼比較
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New 創建新的應用程式錯誤
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包裝錯誤
func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetails 返回帶有詳細資訊的副本（預定義錯誤是共用的，不能直接修改）
func (e *AppError) WithDetails(details string) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// 預定義錯誤
var (
	// ErrRoomNotFound 加入不存在的房間
	ErrRoomNotFound = New(ErrCodeRoomNotFound, "Room not found")

	// ErrRoomFull 加入已有兩名玩家的房間
	ErrRoomFull = New(ErrCodeRoomFull, "Room full")

	// ErrAlreadyInRoom 連線已經綁定房間，不能再次建立或加入
	ErrAlreadyInRoom = New(ErrCodeAlreadyInRoom, "Already in a room")

	// ErrTooManyRooms 房間數量達到上限
	ErrTooManyRooms = New(ErrCodeRoomLimit, "Server busy")

	// ErrRateLimited 建立房間過於頻繁
	ErrRateLimited = New(ErrCodeRateLimited, "Too many requests")

	// ErrIDExhausted 房間 ID 連續碰撞
	ErrIDExhausted = New(ErrCodeInternal, "could not allocate room id")

	// ErrInvalidMessage 無法解析的客戶端訊息
	ErrInvalidMessage = New(ErrCodeInvalidInput, "Invalid message")
)

// Code 取出錯誤碼，非 AppError 回傳 ErrCodeInternal
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// Message 取出可以回傳給客戶端的訊息
func Message(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "Internal error"
}

// IsNotFound 檢查是否為房間不存在錯誤
func IsNotFound(err error) bool {
	return Code(err) == ErrCodeRoomNotFound
}
