package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/suite"

	"civis/internal/authn"
	authnstore "civis/internal/authn/store"
	"civis/internal/biometric"
	"civis/internal/crypto"
	"civis/internal/domain"
	"civis/internal/ledger"
	ledgerstore "civis/internal/ledger/store"
	"civis/internal/liveness"
	"civis/internal/platform/config"
	"civis/internal/registry"
	"civis/internal/token"
	"civis/internal/voters"
	voterstore "civis/internal/voters/store"
)

const enrolledIdentifier = "12345678901"

var enrolledFeatures = []float64{0.9, 0.1, 0.4, 0.7, 0.2}

type TransportSuite struct {
	suite.Suite
	server *httptest.Server
}

func TestTransportSuite(t *testing.T) {
	suite.Run(t, new(TransportSuite))
}

func (s *TransportSuite) SetupTest() {
	ctx := context.Background()
	cipher, err := crypto.NewCipher(ctx, crypto.StaticSecretProvider{Value: []byte("transport-test-secret")})
	s.Require().NoError(err)

	records, err := voters.NewSecureStore(voterstore.NewInMemoryStore(), cipher)
	s.Require().NoError(err)
	_, err = records.Register(ctx, voters.Registration{
		Identifier: enrolledIdentifier,
		FullName:   "Jonas Petrauskas",
		Features:   enrolledFeatures,
		Quality:    0.88,
	})
	s.Require().NoError(err)

	audit, err := ledger.New(ledgerstore.NewInMemoryEventStore())
	s.Require().NoError(err)
	s.Require().NoError(audit.Initialize(ctx))

	gateway := registry.NewGateway(registry.NewOfflineRegistry(cipher), config.DefaultPolicy())

	issuer, err := token.NewIssuer("transport-test-signing-key")
	s.Require().NoError(err)

	service, err := authn.New(
		authnstore.NewInMemorySessionStore(), records, gateway,
		liveness.NewEngine(config.DefaultPolicy()),
		audit, config.DefaultPolicy(),
		authn.WithTokenIssuer(issuer),
	)
	s.Require().NoError(err)

	s.server = httptest.NewServer(NewRouter(Dependencies{
		Authn:  service,
		Audit:  audit,
		Voters: records,
		Tokens: issuer,
	}))
}

func (s *TransportSuite) TearDownTest() {
	s.server.Close()
}

func (s *TransportSuite) post(path string, body any) *http.Response {
	payload, err := json.Marshal(body)
	s.Require().NoError(err)
	resp, err := http.Post(s.server.URL+path, "application/json", bytes.NewReader(payload))
	s.Require().NoError(err)
	return resp
}

func (s *TransportSuite) decode(resp *http.Response, into any) {
	defer resp.Body.Close()
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(into))
}

func (s *TransportSuite) startChallenge() string {
	resp := s.post("/v1/sessions/validate", map[string]string{"identifier": enrolledIdentifier})
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var result authn.ValidationResult
	s.decode(resp, &result)
	s.Require().Equal(domain.StepBiometricChallenge, result.Step)
	return result.SessionID
}

func (s *TransportSuite) TestValidateIdentifier() {
	s.Run("malformed identifier maps to 400", func() {
		resp := s.post("/v1/sessions/validate", map[string]string{"identifier": "12-34"})
		defer resp.Body.Close()
		s.Equal(http.StatusBadRequest, resp.StatusCode)
	})

	s.Run("unknown identifier maps to 404", func() {
		resp := s.post("/v1/sessions/validate", map[string]string{"identifier": "11111111111"})
		defer resp.Body.Close()
		s.Equal(http.StatusNotFound, resp.StatusCode)
	})

	s.Run("enrolled identifier opens a challenge", func() {
		s.NotEmpty(s.startChallenge())
	})
}

func (s *TransportSuite) TestAuthenticate() {
	s.Run("matching sample authenticates", func() {
		sessionID := s.startChallenge()

		resp := s.post("/v1/sessions/"+sessionID+"/authenticate",
			map[string]any{"sample": biometric.PassingSample(enrolledFeatures)})
		s.Require().Equal(http.StatusOK, resp.StatusCode)

		var result authn.AuthResult
		s.decode(resp, &result)
		s.Equal(domain.StepAuthenticated, result.Step)
	})

	s.Run("failed match maps to 422 and lockout to 423", func() {
		sessionID := s.startChallenge()
		bad := biometric.PassingSample([]float64{-0.9, 0.8, -0.4, -0.7, 0.9})

		for i := 0; i < 5; i++ {
			resp := s.post("/v1/sessions/"+sessionID+"/authenticate", map[string]any{"sample": bad})
			s.Equal(http.StatusUnprocessableEntity, resp.StatusCode)
			resp.Body.Close()
		}

		resp := s.post("/v1/sessions/"+sessionID+"/authenticate", map[string]any{"sample": bad})
		defer resp.Body.Close()
		s.Equal(http.StatusLocked, resp.StatusCode)
	})
}

func (s *TransportSuite) TestRegister() {
	s.Run("missing consent maps to 412", func() {
		resp := s.post("/v1/voters", authn.RegistrationRequest{
			Identifier: "98765432109",
			FullName:   "Gabija Urbonaite",
			Sample:     biometric.PassingSample([]float64{0.1, 0.2, 0.3, 0.4, 0.5}),
		})
		defer resp.Body.Close()
		s.Equal(http.StatusPreconditionFailed, resp.StatusCode)
	})
}

func (s *TransportSuite) TestAuditEndpoints() {
	s.startChallenge()

	s.Run("events endpoint returns the recorded trail", func() {
		resp, err := http.Get(s.server.URL + "/v1/audit/events?event_type=identifier_validation")
		s.Require().NoError(err)
		s.Equal(http.StatusOK, resp.StatusCode)

		var body struct {
			Events []domain.AuditEvent `json:"events"`
		}
		s.decode(resp, &body)
		s.NotEmpty(body.Events)
	})

	s.Run("verify endpoint reports a clean chain", func() {
		resp, err := http.Get(s.server.URL + "/v1/audit/verify")
		s.Require().NoError(err)

		var report ledger.IntegrityReport
		s.decode(resp, &report)
		s.True(report.Valid)
	})

	s.Run("csv export sets the content type", func() {
		resp, err := http.Get(s.server.URL + "/v1/audit/export.csv")
		s.Require().NoError(err)
		defer resp.Body.Close()
		s.Equal("text/csv", resp.Header.Get("Content-Type"))
	})
}

func (s *TransportSuite) TestCastVote() {
	s.Run("no assertion maps to 401", func() {
		resp := s.post("/v1/votes/cast", nil)
		defer resp.Body.Close()
		s.Equal(http.StatusUnauthorized, resp.StatusCode)
	})

	s.Run("a fresh assertion buys a vote receipt", func() {
		sessionID := s.startChallenge()
		resp := s.post("/v1/sessions/"+sessionID+"/authenticate",
			map[string]any{"sample": biometric.PassingSample(enrolledFeatures)})
		s.Require().Equal(http.StatusOK, resp.StatusCode)

		var auth authn.AuthResult
		s.decode(resp, &auth)
		s.Require().NotEmpty(auth.Token)

		req, err := http.NewRequest(http.MethodPost, s.server.URL+"/v1/votes/cast", nil)
		s.Require().NoError(err)
		req.Header.Set("Authorization", "Bearer "+auth.Token)

		resp, err = http.DefaultClient.Do(req)
		s.Require().NoError(err)
		s.Equal(http.StatusCreated, resp.StatusCode)

		var receipt map[string]string
		s.decode(resp, &receipt)
		s.NotEmpty(receipt["receipt"])

		events, err := http.Get(s.server.URL + "/v1/audit/events?event_type=vote_cast")
		s.Require().NoError(err)
		var body struct {
			Events []domain.AuditEvent `json:"events"`
		}
		s.decode(events, &body)
		s.Require().Len(body.Events, 1)
		s.Equal(auth.VoterID, body.Events[0].SubjectID)
	})
}

func (s *TransportSuite) TestHealthz() {
	resp, err := http.Get(s.server.URL + "/healthz")
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)
}
