// Package permit provides a typed façade over the host environment's
// permission-query capability.
//
// A caller asks for the current state of a named capability (camera,
// geolocation, notifications, ...) and optionally subscribes to state
// changes. The hard work of determining permission state, prompting the
// user, and persisting the decision belongs to the host; this package
// normalizes the request and response shapes and manages the callback
// bookkeeping around them.
//
// # Querying
//
// Query delegates to the host bridge and always returns a classified
// Outcome, never a raw provider error:
//
//	out := permit.Query(ctx, permit.Request{Name: permit.Camera})
//	switch {
//	case out.Granted():
//	    // state is granted or prompt; out.Status is live
//	case out.Denied():
//	    // access refused
//	default:
//	    // out.Failed(): state is unsupported or invalid
//	}
//
// The two failure states mirror how hosts reject queries: Unsupported means
// the capability name is not recognized in this environment, Invalid means
// the request failed validation at the provider boundary (or the provider
// failed without classifying itself).
//
// # Handlers
//
// NewHandler wraps a query in fire-and-forget callback ergonomics. Results
// surface only through callbacks; a failure with no error callback
// registered is dropped:
//
//	h := permit.NewHandler(permit.Request{Name: permit.Geolocation},
//	    permit.WithGranted(func(s *permit.Status) { startLocating() }))
//	h.Invoke(ctx)
//
// NewAsyncHandler is the deferred flavor: invoking it returns a Resolution
// that settles with the Outcome, rejecting failures as a *StateError:
//
//	r := permit.NewAsyncHandler(permit.Request{Name: permit.Camera}).Invoke(ctx)
//	out, err := r.Wait(ctx)
//
// # Change notification
//
// Granted and denied outcomes carry a live Status descriptor owned by the
// provider. Handlers with a change slot registered keep listening for state
// transitions through it; Listen and Changes observe transitions without
// going through a handler.
//
// # Host bridge
//
// All provider traffic flows over the bridge installed with host.SetBridge.
// Without a bridge (or with one speaking an incompatible protocol), queries
// come back unsupported; guard with Supported or EnsureSupported where that
// matters. Tests substitute a fake via host.SetupTestBridge, and the
// simhost package provides a rule-driven in-process provider.
package permit
