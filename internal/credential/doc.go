// Package credential issues time-bounded SAS credentials for the hub
// connection.
//
// An Issuer combines three collaborators:
//   - a TokenBuilder (the iothub package) that supplies the string to sign
//     and assembles the final password
//   - a Signer that computes the keyed hash (HMAC-SHA256 by default)
//   - the base64 shared access key from the connection string
//
// Issuing performs no I/O. A Credential is immutable and is replaced
// wholesale on renewal.
//
// # Usage
//
//	issuer := credential.NewIssuer(hub, credential.HMACSigner{}, cs.SharedAccessKey)
//	cred, err := issuer.Issue(3600)
//	if err != nil {
//	    return err // configuration error, not retryable
//	}
package credential
