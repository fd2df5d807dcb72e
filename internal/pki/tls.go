// Copyright (c) 2025 Hobu, Inc. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package pki configures TLS for the HTTPS listener.
package pki

import (
	"crypto/tls"
	"fmt"
)

// NewServerTLSConfig builds a TLS 1.2+ server configuration from a
// certificate/key pair. Greyhound's secure listener serves plain HTTPS
// to browser and CLI clients; there is no mutual-TLS requirement, so
// unlike a peer-to-peer protocol this config carries no client CA pool.
func NewServerTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("loading server certificate: %w", err)
	}

	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}, nil
}
