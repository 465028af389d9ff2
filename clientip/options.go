package clientip

import "net"

// Option 配置选项.
type Option func(*options)

type options struct {
	trustedProxies  []*net.IPNet
	trustAllProxies bool
	forwardedHeader string
	realIPHeader    string
}

func defaultOptions() *options {
	return &options{
		trustAllProxies: true,
		forwardedHeader: "X-Forwarded-For",
		realIPHeader:    "X-Real-IP",
	}
}

// WithTrustedProxies 只信任来自给定代理（IP 或 CIDR）的转发头.
//
//	WithTrustedProxies("10.0.0.0/8", "192.168.1.1")
func WithTrustedProxies(cidrs ...string) Option {
	return func(o *options) {
		o.trustAllProxies = false
		for _, cidr := range cidrs {
			if _, ipNet, err := net.ParseCIDR(cidr); err == nil {
				o.trustedProxies = append(o.trustedProxies, ipNet)
				continue
			}
			if ip := net.ParseIP(cidr); ip != nil {
				bits := 32
				if ip.To4() == nil {
					bits = 128
				}
				o.trustedProxies = append(o.trustedProxies, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			}
		}
	}
}

// WithTrustPrivateProxies 信任所有私有网络与回环地址代理.
func WithTrustPrivateProxies() Option {
	return WithTrustedProxies(
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"::1/128",
		"fc00::/7",
	)
}

// WithForwardedHeader 设置转发 header 名称，默认 X-Forwarded-For.
func WithForwardedHeader(name string) Option {
	return func(o *options) {
		o.forwardedHeader = name
	}
}

// WithRealIPHeader 设置真实 IP header 名称，默认 X-Real-IP.
func WithRealIPHeader(name string) Option {
	return func(o *options) {
		o.realIPHeader = name
	}
}

func (o *options) isTrustedProxy(s string) bool {
	if o.trustAllProxies {
		return true
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return false
	}
	for _, cidr := range o.trustedProxies {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}
