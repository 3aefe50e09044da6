// Package hello is the demo service used by the guide-rpc binary and the end-to-end tests.
package hello

import (
	"strings"

	"guide-rpc/provider"

	"github.com/pkg/errors"
)

// Service coordinates of the demo service.
const (
	Interface = "HelloService"
	Version   = "version1"
	Group     = "test1"
)

// Hello is the argument of HelloService.Hello.
type Hello struct {
	Message     string `json:"message"`
	Description string `json:"description"`
}

// HelloServiceImpl answers greetings.
type HelloServiceImpl struct{}

// Hello describes the greeting.
func (s *HelloServiceImpl) Hello(h *Hello) (string, error) {
	if h == nil {
		return "", errors.New("empty greeting")
	}
	return "Hello description is " + h.Description, nil
}

// Shout upper-cases msg n times over.
func (s *HelloServiceImpl) Shout(msg string, n int) (string, error) {
	if n < 0 {
		return "", errors.Errorf("negative count %d", n)
	}
	return strings.Repeat(strings.ToUpper(msg), n), nil
}

// ServiceConfig returns the publish configuration of the demo service.
func ServiceConfig() provider.ServiceConfig {
	return provider.ServiceConfig{
		Service:   &HelloServiceImpl{},
		Interface: Interface,
		Version:   Version,
		Group:     Group,
	}
}
