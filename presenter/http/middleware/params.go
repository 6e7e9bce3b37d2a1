package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/omni/gmp-mock-api/presenter/http/render"
)

type ctxKey int

const (
	chainCtxKey ctxKey = iota
	contractAddressCtxKey
)

var ErrMissingParam = errors.New("missing path parameter")

func GetChainMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chain := chi.URLParam(r, "chain")
		if chain == "" {
			render.Error(w, r, http.StatusBadRequest, fmt.Errorf("chain: %w", ErrMissingParam))
			return
		}

		ctx := context.WithValue(r.Context(), chainCtxKey, chain)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func Chain(ctx context.Context) string {
	chain, _ := ctx.Value(chainCtxKey).(string)
	return chain
}

func GetContractAddressMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contractAddress := chi.URLParam(r, "contractAddress")
		if contractAddress == "" {
			render.Error(w, r, http.StatusBadRequest, fmt.Errorf("contract address: %w", ErrMissingParam))
			return
		}

		ctx := context.WithValue(r.Context(), contractAddressCtxKey, contractAddress)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func ContractAddress(ctx context.Context) string {
	contractAddress, _ := ctx.Value(contractAddressCtxKey).(string)
	return contractAddress
}

// NewBodyLimitMiddleware caps request bodies, reading past the limit fails with *http.MaxBytesError.
func NewBodyLimitMiddleware(limit int64) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
