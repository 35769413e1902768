// Package jwt issues and verifies widget bearer credentials.
//
// A credential is a signed JWT prefixed with the literal "wgt_" so that it
// can be told apart from other token families in transit. The payload binds
// it to a session and a partner: sid, pid, optional uid, typ
// ("widget_user") and perms, plus the registered iss/aud/exp/iat/jti claims.
//
// Every parse failure, whatever the cause, is reported as [ErrInvalidToken].
//
// # What this package must NOT do
//
//   - Decide whether the bound session is still live; callers check that.
//   - Import widgetAuth or session.
package jwt
