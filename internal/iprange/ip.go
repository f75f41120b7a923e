package iprange

import (
	"encoding/binary"
	"net"
	"strings"

	"geodis/internal/geoerr"
)

// IPToUint32：点分十进制 IPv4 转无符号整数
// 约束：IPv6 文本（包括 IPv4 映射形式以外的地址）视为非法
func IPToUint32(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	ip := net.ParseIP(s)
	if ip == nil {
		return 0, geoerr.Invalid("ip", "%q is not an IP address", s)
	}
	v4 := ip.To4()
	if v4 == nil {
		return 0, geoerr.Invalid("ip", "%q is not IPv4", s)
	}
	return binary.BigEndian.Uint32(v4), nil
}

// Uint32ToIP：整数转点分十进制
func Uint32ToIP(v uint32) string {
	b := make(net.IP, 4)
	binary.BigEndian.PutUint32(b, v)
	return b.String()
}

// NetworkBounds：CIDR 网络的首尾地址整数
// 约束：仅 IPv4；以 IPv6 掩码表示的 IPv4 映射网络（前缀 >= 96）折算为 IPv4 前缀
func NetworkBounds(n *net.IPNet) (uint32, uint32, bool) {
	if n == nil {
		return 0, 0, false
	}
	ip := n.IP.To4()
	if ip == nil {
		return 0, 0, false
	}
	ones, bits := n.Mask.Size()
	switch bits {
	case 32:
	case 128:
		if ones < 96 {
			return 0, 0, false
		}
		ones -= 96
	default:
		return 0, 0, false
	}
	var mask uint32
	if ones > 0 {
		mask = ^uint32(0) << (32 - ones)
	}
	start := binary.BigEndian.Uint32(ip) & mask
	return start, start | ^mask, true
}
