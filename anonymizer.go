package main

// This file implements an anonymizer that takes as input IP addresses (both v4
// and v6) and anonymizes them; either via HMAC or via Crypto-PAn.  We only
// ever log anonymized client addresses.  The anonymizer's key eventually
// expires, after which it generates a new key.

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/Yawning/cryptopan"
)

const (
	hmacKeySize     = 20
	methodCryptoPAn = iota
	methodHMAC
)

var errBadAnonMethod = errors.New("unknown anonymization method")

// anonMethod turns the name of an anonymization method into its constant.
func anonMethod(name string) (int, error) {
	switch name {
	case "cryptopan":
		return methodCryptoPAn, nil
	case "hmac":
		return methodHMAC, nil
	}
	return 0, fmt.Errorf("%w: %q", errBadAnonMethod, name)
}

// Anonymizer implements an object that anonymizes IP addresses and
// periodically rotates the key that we use to anonymize addresses.
type Anonymizer struct {
	sync.Mutex
	method    int
	ticker    *time.Ticker
	done      chan empty
	key       []byte
	cryptoPAn *cryptopan.Cryptopan
}

// Anonymize takes as input an IP address and returns a byte slice that
// contains the anonymized IP address and the ID of the key that was used to
// anonymize the IP address.
func (a *Anonymizer) Anonymize(addr net.IP) ([]byte, string) {
	a.Lock()
	defer a.Unlock()

	var anonAddr []byte
	if a.method == methodHMAC {
		h := hmac.New(sha256.New, a.key)
		h.Write(addr)
		anonAddr = h.Sum(nil)
	} else if a.method == methodCryptoPAn {
		anonAddr = a.cryptoPAn.Anonymize(addr)
	}
	return anonAddr, a.keyID()
}

// GetKeyID returns the ID of the currently used anonymization key.
func (a *Anonymizer) GetKeyID() string {
	a.Lock()
	defer a.Unlock()
	return a.keyID()
}

// keyID returns the hex-encoded SHA-256 over the key, truncated to eight
// bytes.  The caller must hold the lock.
func (a *Anonymizer) keyID() string {
	sum := sha256.Sum256(a.key)
	return fmt.Sprintf("%x", sum[:8])
}

// initKeys (re-)initializes the anonymization key.
func (a *Anonymizer) initKeys() {
	a.Lock()
	defer a.Unlock()

	var err error
	if a.method == methodHMAC {
		a.key = make([]byte, hmacKeySize)
		if _, err = rand.Read(a.key); err != nil {
			l.Fatal(err)
		}
		l.Println("Generated HMAC-SHA256 key for IP address anonymization.")
	} else if a.method == methodCryptoPAn {
		a.key = make([]byte, cryptopan.Size)
		if _, err = rand.Read(a.key); err != nil {
			l.Fatal(err)
		}
		if a.cryptoPAn, err = cryptopan.New(a.key); err != nil {
			l.Fatal(err)
		}
		l.Println("Generated Crypto-PAn key for IP address anonymization.")
	}
}

// loop periodically re-initializes the anonymization key.
func (a *Anonymizer) loop() {
	defer a.ticker.Stop()

	for {
		select {
		case <-a.done:
			return
		case <-a.ticker.C:
			a.initKeys()
		}
	}
}

// Stop stops the anonymizer.
func (a *Anonymizer) Stop() {
	close(a.done)
	l.Println("Stopping anonymizer.")
}

// NewAnonymizer returns a new anonymizer using the given anonymization method
// and key expiration period.
func NewAnonymizer(method int, keyExpiration time.Duration) *Anonymizer {
	a := &Anonymizer{
		method: method,
		ticker: time.NewTicker(keyExpiration),
		done:   make(chan empty),
	}
	a.initKeys()
	go a.loop()

	return a
}
