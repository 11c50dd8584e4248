package service

import (
	"errors"
)

const (
	BadRequest          = 400
	Unauthorized        = 401
	NotFound            = 404
	InternalServerError = 500
)

var (
	ErrParamInvalid    = errors.New("参数错误")
	ErrNotConnected    = errors.New("连接未建立")
	ErrRoomNotJoined   = errors.New("尚未加入该聊天室")
	ErrTokenMissing    = errors.New("缺少登录凭据")
	ErrCacheMiss       = errors.New("缓存未命中")
	UnauthorizedError  = errors.New("未授权")
	ErrAlertPermission = errors.New("未获得提醒权限")
)

// ErrorMap 业务错误与响应码的映射
var ErrorMap = map[error]int{
	ErrParamInvalid:    BadRequest,
	ErrNotConnected:    InternalServerError,
	ErrRoomNotJoined:   NotFound,
	ErrTokenMissing:    Unauthorized,
	ErrCacheMiss:       NotFound,
	UnauthorizedError:  Unauthorized,
	ErrAlertPermission: Unauthorized,
}
