// Package users implements the account subsystem of a web application:
// registration, login, password reset and change, account activation and
// per-user preferences.
//
// Accounts:
//   - Services are generic over the Account interface. User is the bun
//     backed implementation and Users its RecordStore.
//   - UserStatus is unverified, active or deactivated. UserStateMachine owns
//     the transition graph; activation is the only way out of unverified
//     for end users.
//
// Codes:
//   - TokenGenerator derives reset and activation codes with HMAC-SHA256
//     from the account state. Nothing is stored. A reset code is bound to
//     the password hash, so a successful reset invalidates it.
//
// Sessions:
//   - Successful login, reset and activation return a SessionDirective.
//     Establishing the session is left to the transport, see package web.
//
// Activity sinks:
//   - ActivitySink receives security events (login attempts, resets,
//     activation, status changes). Sinks run best effort and errors are
//     logged.
package users
