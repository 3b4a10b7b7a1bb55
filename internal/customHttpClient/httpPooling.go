package customHttpClient

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/akolanti/ResearchAssistant/internal/config"
)

// one transport for extraction fetches and the model SDKs so connections are reused
var customTransport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	MaxIdleConns:          config.MaxIdleConns,
	MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
	IdleConnTimeout:       config.IdleConnTimeout,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
}

var once sync.Once
var client *http.Client

// GetClient has no overall timeout, callers bound each request with their context.
func GetClient() *http.Client {
	once.Do(func() {
		client = &http.Client{Transport: customTransport}
	})
	return client
}
