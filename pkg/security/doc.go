/*
Package security provides cryptographic services for a Golem fleet.

This package implements three capabilities: secrets encryption using
AES-256-GCM, a Certificate Authority (CA) for mutual TLS between pods
(executors and shard managers), and certificate lifecycle management on
disk.

# Fleet Encryption Key

All security is rooted in the fleet encryption key, a 32-byte key derived
from the fleet ID during bootstrap:

	fleetKey = SHA-256(fleetID)  // 32 bytes for AES-256

This key encrypts the CA's root private key at rest. It is held only in
memory on pods that run the CA and must be supplied again when a pod
restarts or recovers from backup.

# Certificate Authority

CertAuthority holds a single root CA with a long-lived self-signed
certificate:

	Root CA (self-signed)
	├── 10-year validity
	├── RSA 4096-bit key
	├── KeyUsage: CertSign, CRLSign
	└── Subject: CN=Golem Root CA, O=Golem Executor Fleet

The root CA is generated once (Initialize) and persisted through
storage.BlobStorage under BlobNamespaceCertificateAuthority, with the
root private key encrypted by the fleet key before it is written
(SaveToStore/LoadFromStore).

Pod certificates (IssuePodCertificate) are short-lived leaves signed by
the root:

	Pod Certificate
	├── 90-day validity
	├── RSA 2048-bit key
	├── KeyUsage: DigitalSignature, KeyEncipherment
	├── ExtKeyUsage: ServerAuth, ClientAuth
	└── Subject: CN={role}-{podID}, O=Golem Executor Fleet

CLI clients get a ClientAuth-only certificate (IssueClientCertificate),
so a client cert can never be mistaken for a pod's server cert in the
other direction.

Issued certificates are recorded in memory by ID (GetCachedCert).
IssuePodCertificate and IssueClientCertificate do not consult this
record: every call generates a fresh RSA key and certificate.

# gRPC mTLS

Both the WorkerExecutor and ShardManager gRPC servers use the issued
certificates for mutual TLS:

	creds := credentials.NewTLS(&tls.Config{
		Certificates: []tls.Certificate{podCert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    certPool, // contains the root CA
	})

# Certificate Files on Disk

certs.go manages the on-disk representation independent of the CA
itself: GetCertDir/GetCLICertDir pick a stable path under the user's
home directory, SaveCertToFile/LoadCertFromFile round-trip a
tls.Certificate as PEM-encoded pod.crt/pod.key, and CertNeedsRotation
flags a certificate for renewal once fewer than 30 days remain.

# Secrets Encryption

SecretsManager wraps AES-256-GCM for general-purpose encrypted storage
(EncryptSecret/DecryptSecret), used the same way the package-level
Encrypt/Decrypt helpers protect the CA's root key: a random 12-byte
nonce is prepended to the ciphertext so each call is safe to repeat with
the same key.
*/
package security
