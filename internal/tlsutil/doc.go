// Package tlsutil 提供 API 监听端与健康探测客户端共用的 TLS 设置（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
