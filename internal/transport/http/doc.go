// Package http implements the HTTP request handlers of the calibration
// engine. It is a thin layer between transport and the service packages:
// handlers parse and validate requests, delegate to a service, and render
// the response.
//
// # Request Flow
//
// A typical request flows through these layers:
//
//	HTTP Request → Chi Router → Middleware → Handler → Service → Store
//	                                              ↓
//	HTTP Response ← Handler ← Service Response ←─┘
//
// # Handler Structure
//
// Each handler follows this pattern:
//
//	func (h *Handler) HandleSomething(w http.ResponseWriter, r *http.Request) {
//	    // 1. Parse and validate the request
//	    // 2. Call the service layer
//	    // 3. Render the result, or hand the error to the error handler
//	}
//
// # Error Handling
//
// All errors follow RFC 7807 Problem Details:
//
//	{
//	    "type": "/errors/calibration/not-calibrated",
//	    "title": "Keyword Not Calibrated",
//	    "status": 422,
//	    "detail": "keyword \"강남 미용실\" has no accepted calibration",
//	    "instance": "/api/v1/simulate/inverse"
//	}
//
// Domain conditions are carried as sentinel errors by the services and
// translated to problem responses in one place, the shared error handler.
package http
