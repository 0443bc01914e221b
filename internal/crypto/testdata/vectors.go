package testdata

// TestVector contains known input/output pairs for testing.
type TestVector struct {
	Name      string
	Password  string
	Nonce     string // Hex, doubles as PBKDF2 salt
	Key       string // Hex
	Plaintext string // Hex
	Blob      string // Hex
}

// Vectors contains blobs produced with the default parameters
// (PBKDF2-HMAC-SHA1, 65536 iterations, 16-byte key, AES-GCM).
var Vectors = []TestVector{
	{
		Name:      "iOS wallet secret",
		Password:  "passwort",
		Nonce:     "84b95e7212ab7c61b6d579a7",
		Key:       "bdd98a3bbdb9a5edd28e5d76b4103911",
		Plaintext: "7b226d6e656d6f6e6963223a223120322033203420352036203720382039203130203131203132227d",
		Blob:      "0000000c84b95e7212ab7c61b6d579a7f5d9db16ee1d7d0d4eac3cc680d62e8791b0cf3734ff09981a5cc774d5cd8b4f07d220b23a7b39023cb4dc854dae4729cbd89c07e8949c301c",
	},
	{
		Name:      "32 zero bytes",
		Password:  "correct horse",
		Nonce:     "000102030405060708090a0b",
		Key:       "cb3b66ff0d95d1c2b05143f7c14f5226",
		Plaintext: "0000000000000000000000000000000000000000000000000000000000000000",
		Blob:      "0000000c000102030405060708090a0b65418f02ce597c74e94f57d9efbaffbeb55e2bf149a8346041f674dcb9c00e36dd481471e3158e024b9983e4117fe40c",
	},
}

// PBKDF2Vector is an HMAC-SHA1 vector from RFC 6070, truncated to the key size.
type PBKDF2Vector struct {
	Password   string
	Salt       string
	Iterations int
	Key        string // Hex
}

// PBKDF2Vectors contains RFC 6070 derived keys cut to 16 bytes.
var PBKDF2Vectors = []PBKDF2Vector{
	{Password: "password", Salt: "salt", Iterations: 1, Key: "0c60c80f961f0e71f3a9b524af601206"},
	{Password: "password", Salt: "salt", Iterations: 4096, Key: "4b007901b765489abead49d926f721d0"},
}
