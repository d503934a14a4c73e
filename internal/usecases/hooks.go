package usecases

import (
	"context"

	"crosspay.facilitator/internal/domain/entities"
)

// HookResult tells the orchestrator whether to proceed.
type HookResult struct {
	Abort  bool
	Reason string
}

// Continue lets the operation proceed.
func Continue() HookResult {
	return HookResult{}
}

// Abort short-circuits the operation with a reason returned to the caller.
func Abort(reason string) HookResult {
	return HookResult{Abort: true, Reason: reason}
}

// Hook functions observe or gate verify and settle operations.
type (
	BeforeVerifyHook  func(ctx context.Context, req *entities.VerifyRequest) HookResult
	AfterVerifyHook   func(ctx context.Context, req *entities.VerifyRequest, resp *entities.VerifyResponse)
	VerifyFailureHook func(ctx context.Context, req *entities.VerifyRequest, resp *entities.VerifyResponse)
	BeforeSettleHook  func(ctx context.Context, req *entities.SettleRequest) HookResult
	AfterSettleHook   func(ctx context.Context, req *entities.SettleRequest, resp *entities.SettleResponse)
	SettleFailureHook func(ctx context.Context, req *entities.SettleRequest, resp *entities.SettleResponse)
)

// Hooks is the set of lifecycle callbacks registered on the orchestrator.
// All slices may be empty. Before-hooks run in order and the first abort
// wins; after-hooks are notifications and cannot abort.
type Hooks struct {
	BeforeVerify  []BeforeVerifyHook
	AfterVerify   []AfterVerifyHook
	VerifyFailure []VerifyFailureHook
	BeforeSettle  []BeforeSettleHook
	AfterSettle   []AfterSettleHook
	SettleFailure []SettleFailureHook
}
