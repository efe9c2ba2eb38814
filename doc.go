// Package accounts provides account access control and recovery: a role
// hierarchy with a plan axis, a capability table, HS256 session tokens,
// one shot reset and recovery tokens, and the account lifecycle.
//
// Lifecycle:
//   - AccountStateMachine runs every transition inside
//     CredentialStore.RunInTx. Planners in transitions.go compute the new
//     account and the notifications it produces without touching storage.
//   - Disabling the last active superadmin fails with ErrLastSuperadmin.
//     Otherwise the superadmin receives a recovery token by email and can
//     come back as admin through RecoverViaToken, then ask the remaining
//     superadmins for approval.
//
// Notifications:
//   - Notifier is the delivery contract. Transitions dispatch after commit
//     in the background, RequestReset dispatches inline and rolls back the
//     stored reset token when delivery fails.
//
// Activity sinks:
//   - ActivitySink receives one event per committed transition. Sinks run
//     best-effort, errors are logged.
package accounts
