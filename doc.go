// Package accounts manages the local accounts of a self-hosted
// application: creation, enable and disable, admin promotion, login with
// or without a password, and password recovery with one time codes.
//
// Accounts:
//   - Accounts are keyed by a normalized handle (trimmed, lowercased and
//     slugified). Every lookup normalizes its input first, so "Alice Smith"
//     and "alice-smith" name the same account.
//   - Passwords are optional. An account with an empty digest accepts any
//     password. Digests are scrypt keys derived with a per account salt
//     that is rotated on every credential change.
//   - Mutations of a single handle are serialized by the Service, so two
//     concurrent creates of the same handle yield exactly one account.
//
// Recovery:
//   - RequestRecovery issues a short numeric code through a CodeDelivery.
//     Codes are stored as digests, expire after a few minutes, and are
//     burned after a bounded number of wrong guesses.
//   - CompleteRecovery consumes the code, replaces the credentials, and
//     logs the account in.
//
// HTTP:
//   - NewHTTPServer mounts the CSRF handshake at /csrf-token and the
//     account endpoints under /api/users. State changing requests must
//     echo the token in the X-CSRF-Token header.
//   - Sessions are signed JWTs carried in an HTTP only cookie or an
//     Authorization bearer header.
//
// Storage backends live in the repository package: memory, redis and
// SQLite through bun.
package accounts
