// Copyright 2024 The go-ethereum Authors
// This file is part of go-ethereum.
//
// go-ethereum is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-ethereum is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-ethereum. If not, see <http://www.gnu.org/licenses/>.

// Package refproxy is a reference Ethereum JSON-RPC proxy. Several endpoints
// share one in-memory ledger and each endpoint signs for its own identity,
// mirroring a deployment where every proxy instance holds one user's
// credentials.
package refproxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/golang-jwt/jwt/v4"
	"github.com/holiman/uint256"
	"github.com/rs/cors"
	"github.com/tkmct/proxycheck/ledger"
	"golang.org/x/sync/errgroup"
)

var (
	requestCounter = metrics.NewRegisteredCounter("proxycheck/refproxy/tx/accepted", nil)
	authFailures   = metrics.NewRegisteredCounter("proxycheck/refproxy/auth/failures", nil)
)

// jwtMaxSkew bounds the issued-at claim of accepted tokens.
const jwtMaxSkew = 60 * time.Second

// Config configures a cluster.
type Config struct {
	// Users names one identity per endpoint.
	Users   []string
	ChainID uint64
	// ListenAddrs holds one listen address per user; missing entries listen
	// on a random local port.
	ListenAddrs []string
	// ReceiptDelay hides receipts for this long after submission.
	ReceiptDelay time.Duration
	// JWTSecret makes every endpoint require an HS256 bearer token.
	JWTSecret []byte
	// ClientVersion is reported by web3_clientVersion.
	ClientVersion string
	// CORSOrigins lists the browser origins allowed to call the endpoints.
	CORSOrigins []string
}

// Identity derives the deterministic account of a named user.
func Identity(user string) common.Address {
	key, err := crypto.ToECDSA(crypto.Keccak256([]byte("refproxy:" + user)))
	if err != nil {
		return common.BytesToAddress(crypto.Keccak256([]byte(user)))
	}
	return crypto.PubkeyToAddress(key.PublicKey)
}

// Endpoint is one listening proxy instance.
type Endpoint struct {
	User     string
	Identity common.Address

	server   *rpc.Server
	listener net.Listener
	httpSrv  *http.Server
}

// URL is the http address of the endpoint.
func (e *Endpoint) URL() string {
	return "http://" + e.listener.Addr().String()
}

// Cluster is a set of endpoints over one ledger.
type Cluster struct {
	Ledger    *ledger.Ledger
	Endpoints []*Endpoint

	closeOnce sync.Once
}

// NewCluster creates the ledger, funds every identity and binds the
// listeners. Serving starts with Serve.
func NewCluster(cfg Config) (*Cluster, error) {
	if len(cfg.Users) == 0 {
		return nil, errors.New("at least one user is required")
	}
	if cfg.ClientVersion == "" {
		cfg.ClientVersion = "refproxy/v1"
	}
	alloc := make(map[common.Address]*uint256.Int, len(cfg.Users))
	for _, user := range cfg.Users {
		alloc[Identity(user)] = uint256.NewInt(1e18)
	}
	l, err := ledger.New(ledger.Config{ChainID: cfg.ChainID, Alloc: alloc})
	if err != nil {
		return nil, err
	}
	c := &Cluster{Ledger: l}
	for i, user := range cfg.Users {
		addr := "127.0.0.1:0"
		if i < len(cfg.ListenAddrs) && cfg.ListenAddrs[i] != "" {
			addr = cfg.ListenAddrs[i]
		}
		ep, err := newEndpoint(l, user, addr, cfg)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.Endpoints = append(c.Endpoints, ep)
	}
	return c, nil
}

func newEndpoint(l *ledger.Ledger, user, addr string, cfg Config) (*Endpoint, error) {
	ep := &Endpoint{User: user, Identity: Identity(user), server: rpc.NewServer()}
	apis := map[string]interface{}{
		"eth":  newEthAPI(l, ep.Identity, cfg.ReceiptDelay),
		"web3": &Web3API{version: cfg.ClientVersion},
		"net":  &NetAPI{chainID: cfg.ChainID},
	}
	for name, api := range apis {
		if err := ep.server.RegisterName(name, api); err != nil {
			return nil, fmt.Errorf("register %s API: %w", name, err)
		}
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	ep.listener = listener
	var handler http.Handler = ep.server
	if len(cfg.JWTSecret) > 0 {
		handler = newJWTHandler(cfg.JWTSecret, handler)
	}
	handler = newCorsHandler(handler, cfg.CORSOrigins)
	ep.httpSrv = &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	return ep, nil
}

// URLs lists the endpoint addresses in user order.
func (c *Cluster) URLs() []string {
	urls := make([]string, len(c.Endpoints))
	for i, ep := range c.Endpoints {
		urls[i] = ep.URL()
	}
	return urls
}

// Serve runs every endpoint until ctx is cancelled or one of them fails.
func (c *Cluster) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, ep := range c.Endpoints {
		g.Go(func() error {
			log.Info("Serving reference proxy", "user", ep.User, "identity", ep.Identity, "url", ep.URL())
			if err := ep.httpSrv.Serve(ep.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("endpoint %s: %w", ep.User, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		c.Close()
		return nil
	})
	return g.Wait()
}

// Start serves in the background and returns a function that stops the
// cluster and waits for it.
func (c *Cluster) Start() (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := c.Serve(ctx); err != nil {
			log.Error("Reference proxy stopped", "err", err)
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// Close stops every endpoint.
func (c *Cluster) Close() {
	c.closeOnce.Do(func() {
		for _, ep := range c.Endpoints {
			if ep.httpSrv != nil {
				_ = ep.httpSrv.Close()
			}
			if ep.listener != nil {
				_ = ep.listener.Close()
			}
			ep.server.Stop()
		}
	})
}

func newCorsHandler(srv http.Handler, allowedOrigins []string) http.Handler {
	// disable CORS support if user has not specified a custom CORS configuration
	if len(allowedOrigins) == 0 {
		return srv
	}
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodPost, http.MethodGet},
		AllowedHeaders: []string{"*"},
		MaxAge:         600,
	})
	return c.Handler(srv)
}

// newJWTHandler rejects requests without a valid bearer token signed with
// secret.
func newJWTHandler(secret []byte, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := checkJWT(secret, r.Header.Get("Authorization")); err != nil {
			authFailures.Inc(1)
			log.Debug("Rejected request", "remote", r.RemoteAddr, "err", err)
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func checkJWT(secret []byte, header string) error {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return errors.New("missing token")
	}
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return err
	}
	if !token.Valid {
		return errors.New("invalid token")
	}
	if claims.IssuedAt == nil {
		return errors.New("missing issued-at")
	}
	if skew := time.Since(claims.IssuedAt.Time); skew > jwtMaxSkew || skew < -jwtMaxSkew {
		return errors.New("stale token")
	}
	return nil
}
