// Package session implements authgate's cookie-bound sessions.
//
// A Session is a small key/value bag with flash support. A Store turns the
// request Cookie header into a Session and turns a Session back into a
// Set-Cookie header value:
//
//   - CookieStore keeps the whole session inside the cookie, encrypted as a
//     PASETO v4.local token.
//   - IDStore keeps only a signed session id in the cookie and delegates the
//     data to a DataStore (memory, Postgres, Redis or Memcached).
//
// Reading a flash value removes it from the in-memory session; the removal is
// only durable once the session is committed. Concurrent requests from the
// same browser race on commit and the last Set-Cookie wins.
package session
