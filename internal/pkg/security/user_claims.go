package security

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// UserClaims 服务端签发 Token 中携带的业务信息
type UserClaims struct {
	UserID uint64   `json:"user_id"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// ParseUserID 从 Token 中解出当前用户 ID。
// 客户端不持有签名密钥，仅做不验签的解码；Token 的真伪由服务端裁决。
func ParseUserID(tokenString string) (uint64, error) {
	if tokenString == "" {
		return 0, errors.New("token 为空")
	}

	claims := &UserClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return 0, err
	}

	if claims.UserID == 0 {
		return 0, errors.New("token 中缺少 user_id")
	}
	return claims.UserID, nil
}
