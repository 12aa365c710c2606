// Package kafkautils creates Kafka writers for the relay's event stream.  The
// broker and topic come from environment variables, and the client
// authenticates with a certificate.
package kafkautils

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/segmentio/kafka-go"
)

const (
	// DefaultKafkaKey holds the default path to the Kafka certificate key.
	DefaultKafkaKey = "/etc/kafka/secrets/key"
	// DefaultKafkaCert holds the default path to the Kafka certificate.
	DefaultKafkaCert = "/etc/kafka/secrets/certificate"
	// DefaultKafkaCACert holds the default path to the certificate of the CA
	// that signed the broker's certificate.  The file is optional.
	DefaultKafkaCACert = "/etc/kafka/secrets/ca-certificate"
	envKafkaBroker     = "KAFKA_BROKERS"
	envKafkaTopic      = "KAFKA_TOPIC"
)

var (
	l = log.New(os.Stderr, "kafkautils: ", log.Ldate|log.Ltime|log.LUTC|log.Lshortfile)

	errBadCACert = errors.New("failed to parse CA certificate")
)

func lookupEnv(envVar string) (string, error) {
	value, exists := os.LookupEnv(envVar)
	if !exists {
		return "", fmt.Errorf("environment variable %q not set", envVar)
	}
	if value == "" {
		return "", fmt.Errorf("environment variable %q empty", envVar)
	}
	return value, nil
}

// Configured returns true if the environment tells us where to send events.
func Configured() bool {
	_, errBroker := lookupEnv(envKafkaBroker)
	_, errTopic := lookupEnv(envKafkaTopic)
	return errBroker == nil && errTopic == nil
}

func loadCACert(caFile string) (*x509.CertPool, error) {
	pool, err := x509.SystemCertPool()
	if err != nil {
		l.Printf("Failed to instantiate system cert pool: %v", err)
		pool = x509.NewCertPool()
	}
	c, err := os.ReadFile(caFile)
	if errors.Is(err, os.ErrNotExist) {
		return pool, nil
	} else if err != nil {
		return nil, err
	}
	if ok := pool.AppendCertsFromPEM(c); !ok {
		return nil, errBadCACert
	}
	l.Printf("Added CA certificate %q to cert pool.", caFile)
	return pool, nil
}

// NewKafkaWriter creates a new Kafka writer based on the environment variables
// envKafkaBroker and envKafkaTopic, and the given certificate files.
func NewKafkaWriter(certFile, keyFile, caFile string) (*kafka.Writer, error) {
	kafkaBrokers, err := lookupEnv(envKafkaBroker)
	if err != nil {
		return nil, err
	}
	// If we're dealing with a comma-separated list of brokers, simply select
	// the first one.
	kafkaBroker := strings.Split(kafkaBrokers, ",")[0]

	l.Printf("Fetched Kafka broker %q from environment variable.", kafkaBroker)
	kafkaTopic, err := lookupEnv(envKafkaTopic)
	if err != nil {
		return nil, err
	}
	l.Printf("Fetched Kafka topic %q from environment variable.", kafkaTopic)

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, err
	}
	l.Println("Loaded certificate and key file for Kafka.")
	pool, err := loadCACert(caFile)
	if err != nil {
		return nil, err
	}

	return &kafka.Writer{
		Addr:  kafka.TCP(kafkaBroker),
		Topic: kafkaTopic,
		Transport: &kafka.Transport{
			TLS: &tls.Config{
				Certificates: []tls.Certificate{cert},
				// Not all brokers support TLS 1.3 yet.
				MinVersion: tls.VersionTLS12,
				RootCAs:    pool,
			},
		},
	}, nil
}
