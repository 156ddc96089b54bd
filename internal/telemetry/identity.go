package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"telemetry-client/internal/models"
)

// CheckStatus reports whether the persisted credentials are accepted by the
// service. Missing credentials and any non-200 response mean not registered;
// only transport failures are returned as errors.
func (c *Client) CheckStatus(ctx context.Context) (bool, error) {
	ident, err := c.Identity()
	if err != nil {
		return false, err
	}
	if !ident.Valid() {
		c.setState(StateUnregistered)
		return false, nil
	}

	status, _, err := c.do(ctx, http.MethodPost, pathStatus, nil, models.StatusRequest{
		ID:    ident.ID,
		Token: ident.Token,
	})
	if err != nil {
		return false, err
	}

	if status != http.StatusOK {
		c.logger.Info().Int("status", status).Msg("Persisted credentials rejected")
		c.setState(StateUnregistered)
		return false, nil
	}

	if c.State() == StateUnregistered {
		c.setState(StateRegistered)
	}
	return true, nil
}

// Register requests new credentials and persists them, replacing any prior pair
// and forgetting the fingerprint stored for it. It is never retried.
func (c *Client) Register(ctx context.Context) (models.ClientIdentity, error) {
	status, data, err := c.do(ctx, http.MethodPost, pathRegister, nil, nil)
	if err != nil {
		return models.ClientIdentity{}, err
	}
	if status != http.StatusCreated {
		return models.ClientIdentity{}, &ProtocolError{Op: "register", StatusCode: status}
	}

	var ident models.ClientIdentity
	if err := decode("register", data, &ident); err != nil {
		return models.ClientIdentity{}, err
	}
	if !ident.Valid() {
		return models.ClientIdentity{}, fmt.Errorf("register: response missing id or token")
	}

	// the stored hash was checked in under the previous identity
	if err := c.store.Delete(KeyFingerprint); err != nil {
		return models.ClientIdentity{}, fmt.Errorf("failed to clear stored fingerprint: %w", err)
	}
	err = c.store.SetMany(map[string]string{
		KeyClientID:    ident.ID,
		KeyClientToken: ident.Token,
	})
	if err != nil {
		return models.ClientIdentity{}, fmt.Errorf("failed to persist client identity: %w", err)
	}

	c.logger.Info().Str("clientID", ident.ID).Msg("Registered new client identity")
	c.setState(StateRegistered)
	return ident, nil
}

// Checkin submits the fingerprint hash under the persisted identity
func (c *Client) Checkin(ctx context.Context, fingerprintHash, userAgent string, uad *models.UserAgentData) error {
	ident, err := c.Identity()
	if err != nil {
		return err
	}
	if !ident.Valid() {
		return fmt.Errorf("checkin: %w", ErrNotRegistered)
	}

	status, _, err := c.do(ctx, http.MethodPost, pathCheckin, nil, models.CheckinRequest{
		ClientID:    ident.ID,
		ClientToken: ident.Token,
		Version:     c.cfg.ClientVersion,
		FPV:         c.cfg.FingerprintVersion,
		FP:          fingerprintHash,
		UA:          userAgent,
		UAD:         uad,
	})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return &ProtocolError{Op: "checkin", StatusCode: status}
	}

	c.setState(StateCheckedIn)
	return nil
}
