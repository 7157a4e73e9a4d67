// Package handler adapts typed request handlers to net/http.
//
// A handler receives a bound request struct and returns a Response; binding
// and rendering failures go to a single ErrorHandler:
//
//	type startTrialRequest struct {
//		AccountID string `path:"accountID"`
//		Plan      string `json:"plan"`
//	}
//
//	func startTrial(ctx handler.Context, req startTrialRequest) handler.Response {
//		sub, err := trials.StartTrial(ctx, req.AccountID, plans.Pro)
//		if err != nil {
//			return handler.JSONError(err)
//		}
//		return handler.JSON(sub, handler.WithJSONStatus(http.StatusCreated))
//	}
//
//	r.Post("/v1/accounts/{accountID}/trial", handler.Wrap(startTrial,
//		handler.WithBinders[handler.Context, startTrialRequest](binder.Path(), binder.JSON()),
//	))
//
// JSON bodies share one envelope: {"data": ..., "meta": ..., "error": ...}.
// HTTPError and ValidationError control the status code of error responses;
// any other error renders as 500 without leaking its message.
package handler
