package classifier

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/yeisme/hsrelay/pkg/configs"
)

// newBreaker 基于失败比例的熔断器，只统计上游自身的故障.
func newBreaker(cfg configs.CircuitBreakerConfig) *gobreaker.CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        "classifier",
		MaxRequests: cfg.MaxRequestsInHalf,
		Interval:    cfg.Interval(),
		Timeout:     cfg.OpenTimeout(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			total := counts.Requests
			if total < cfg.MinRequests {
				return false
			}
			// 失败比例
			failureRate := float64(counts.TotalFailures) / float64(total)

			return failureRate >= cfg.FailureRate
		},
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	}

	return gobreaker.NewCircuitBreaker(settings)
}

// countsAsSuccess 4xx 与调用方取消不计入失败.
func countsAsSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.Status < http.StatusInternalServerError
	}

	return false
}
