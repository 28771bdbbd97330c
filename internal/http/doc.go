// Package http exposes the worktrack engine as a JSON API.
//
// The router exposes the following endpoints:
//   - POST /api/sessions/start: starts a session. Body: {"userId","taskName",
//     "estimatedDurationMinutes"}. Any running session of the user is stopped
//     first. A denial by the user's tracking rule answers 403 with
//     {"errorCode":"TRACKING_NOT_ALLOWED","message","nextAllowedWindow"}.
//   - POST /api/sessions/{id}/stop: stops a session. Stopping twice answers 409.
//   - GET /api/sessions/{id}, GET /api/sessions?userId=&status=: session reads.
//     Responses carry the employee's first and last name when known.
//   - POST /api/activity, GET /api/activity/session/{id}: activity signals.
//     Body: {"sessionId","activityStatus":"ACTIVE"|"IDLE","metadata"}.
//   - GET|POST /api/admin/login-rules, GET|PUT|DELETE /api/admin/login-rules/{id}:
//     tracking rule management exchanging the ruleDTO payload.
//   - GET|POST /api/employees, GET|PUT|DELETE /api/employees/{id}: employee
//     management. GET /api/employees/{id}/stats?from=YYYY-MM-DD&to=YYYY-MM-DD
//     summarises sessions, GET /api/employees/{id}/session returns the running
//     session and GET /api/employees/{id}/login-rule reports the effective rule.
//   - POST /api/auth/login, POST /api/auth/signup: credential check and
//     self registration.
//   - GET /api/events?topic=...: server-sent event stream of session, activity
//     and employee changes. Topics ending in "." match by prefix.
//   - GET /healthz and GET /metrics.
//
// Request/response DTOs live alongside their respective handlers.
package http
