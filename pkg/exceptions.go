package pkg

import (
	psperrors "github.com/pspf-project/pspf/pkg/psp/errors"
)

var (
	// Security errors 🔒
	ErrIntegrityCheckFailed = psperrors.ErrIntegrityCheckFailed
	ErrSignatureInvalid     = psperrors.ErrSignatureInvalid
	ErrNoIntegritySeal      = psperrors.ErrNoIntegritySeal
)
