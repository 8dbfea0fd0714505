// Package password hashes account passwords for the identity backends with
// Argon2id.
//
// Hashes are PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsUpgrade] reports hashes produced with weaker parameters so a
// backend can re-hash on the next successful sign-in.
//
// This package never stores passwords and never logs them.
package password
