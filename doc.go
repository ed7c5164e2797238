// Package account provides sign-up, email verification and session login
// for study-group members (bun repositories, JWT cookie sessions, HTTP
// handlers on go-router).
//
// Account lifecycle:
//   - Accounts start unverified with a random email check token. The token is
//     single use and expires after the configured TTL (24h by default).
//   - LifecycleManager creates accounts, checks tokens and completes sign-up.
//     Completion runs through VerificationStateMachine, which only allows
//     unverified -> verified and treats a repeated completion as a no-op, so
//     the joined-at timestamp is set exactly once.
//   - Email and nickname uniqueness is pre-checked by SignupValidator and
//     enforced by UNIQUE constraints; both surface the same field violations.
//
// Activity sinks:
//   - ActivitySink receives registration, verification and login events.
//     Sinks run best-effort (errors are logged) so you can forward to a
//     database or queue without blocking sign-up.
//
// Notifiers:
//   - Notifier hands the verification message off out of band. LogNotifier
//     prints it, notifier/kafka publishes it as a VerifyEmailEvent.
package account
