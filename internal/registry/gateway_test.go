package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/suite"

	"civis/internal/crypto"
	"civis/internal/platform/config"
	dErrors "civis/pkg/domain-errors"
)

type GatewaySuite struct {
	suite.Suite
	cipher  *crypto.Cipher
	offline *OfflineRegistry
}

func TestGatewaySuite(t *testing.T) {
	suite.Run(t, new(GatewaySuite))
}

func (s *GatewaySuite) SetupTest() {
	var err error
	s.cipher, err = crypto.NewCipher(context.Background(), crypto.StaticSecretProvider{Value: []byte("registry-test-secret")})
	s.Require().NoError(err)

	s.offline = NewOfflineRegistry(s.cipher)
	s.Require().NoError(s.offline.Add("12345678901", Demographic{
		FullName:    "Ona Kazlauskiene",
		DateOfBirth: "1981-03-14",
		Region:      "Vilnius",
	}))
}

func (s *GatewaySuite) gateway(opts ...Option) *Gateway {
	return NewGateway(s.offline, config.DefaultPolicy(), opts...)
}

func (s *GatewaySuite) TestValidateFormat() {
	g := s.gateway()

	s.Run("eleven digits pass", func() {
		s.NoError(g.ValidateFormat("12345678901"))
	})

	s.Run("wrong length is rejected", func() {
		err := g.ValidateFormat("1234567890")
		s.Equal(dErrors.CodeInvalidFormat, dErrors.CodeOf(err))

		err = g.ValidateFormat("123456789012")
		s.Equal(dErrors.CodeInvalidFormat, dErrors.CodeOf(err))
	})

	s.Run("non-digit characters are rejected", func() {
		err := g.ValidateFormat("1234567890a")
		s.Equal(dErrors.CodeInvalidFormat, dErrors.CodeOf(err))
	})

	s.Run("empty identifier is rejected", func() {
		s.Error(g.ValidateFormat(""))
	})
}

func (s *GatewaySuite) TestValidateOnline() {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/citizens/12345678901":
			_ = json.NewEncoder(w).Encode(Demographic{FullName: "Ona Kazlauskiene", Region: "Vilnius"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	g := s.gateway(WithOnline(NewHTTPClient(server.URL)))

	s.Run("known identifier resolves online", func() {
		result, err := g.Validate(context.Background(), "12345678901")
		s.Require().NoError(err)
		s.True(result.Valid)
		s.Equal(SourceOnline, result.Source)
		s.Require().NotNil(result.Demographic)
		s.Equal("Ona Kazlauskiene", result.Demographic.FullName)
	})

	s.Run("definitive online not-found does not fall back", func() {
		// 98765432109 exists nowhere, but even if the offline snapshot had it
		// the online answer would stand.
		result, err := g.Validate(context.Background(), "98765432109")
		s.Require().NoError(err)
		s.False(result.Valid)
		s.Equal(SourceOnline, result.Source)
	})
}

func (s *GatewaySuite) TestValidateOfflineFallback() {
	s.Run("unreachable online registry falls back to the snapshot", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		g := s.gateway(WithOnline(NewHTTPClient(server.URL)))
		result, err := g.Validate(context.Background(), "12345678901")
		s.Require().NoError(err)
		s.True(result.Valid)
		s.Equal(SourceOffline, result.Source)
		s.Require().NotNil(result.Demographic)
		s.Equal("Vilnius", result.Demographic.Region)
	})

	s.Run("no online client configured goes straight to the snapshot", func() {
		g := s.gateway()
		result, err := g.Validate(context.Background(), "12345678901")
		s.Require().NoError(err)
		s.True(result.Valid)
		s.Equal(SourceOffline, result.Source)
	})

	s.Run("identifier unknown to both registries is invalid", func() {
		g := s.gateway()
		result, err := g.Validate(context.Background(), "11111111111")
		s.Require().NoError(err)
		s.False(result.Valid)
		s.Equal(SourceOffline, result.Source)
	})
}
