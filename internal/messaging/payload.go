package messaging

import (
	"bytes"
	"encoding/json"
	"errors"

	id "ccns/pkg/domain"
	dErrors "ccns/pkg/domain-errors"
)

// NameUpdate is the replicated payload: name is now owned by owner.
type NameUpdate struct {
	Name  id.Name
	Owner id.Address
}

type nameUpdatePayload struct {
	Name  *string     `json:"name"`
	Owner *id.Address `json:"owner"`
}

// EncodeNameUpdate renders the wire form of u.
func EncodeNameUpdate(u NameUpdate) ([]byte, error) {
	name := u.Name.String()
	owner := u.Owner
	return json.Marshal(nameUpdatePayload{Name: &name, Owner: &owner})
}

// DecodeNameUpdate parses the wire form. Both fields are required, unknown
// fields and trailing data are rejected, the name must carry the registrable
// suffix and the owner must not be the zero address.
//
// Errors: every failure is CodeMalformedPayload.
func DecodeNameUpdate(data []byte) (NameUpdate, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var p nameUpdatePayload
	if err := dec.Decode(&p); err != nil {
		return NameUpdate{}, dErrors.Wrap(err, dErrors.CodeMalformedPayload, "payload is not a name update")
	}
	if dec.More() {
		return NameUpdate{}, dErrors.New(dErrors.CodeMalformedPayload, "trailing data after name update")
	}
	if p.Name == nil || p.Owner == nil {
		return NameUpdate{}, dErrors.New(dErrors.CodeMalformedPayload, "name update requires name and owner")
	}
	name, err := id.ParseName(*p.Name)
	if err != nil {
		return NameUpdate{}, dErrors.Wrap(err, dErrors.CodeMalformedPayload, "name update carries an invalid name")
	}
	if p.Owner.IsZero() {
		return NameUpdate{}, dErrors.Wrap(errors.New("zero owner"), dErrors.CodeMalformedPayload, "name update carries no owner")
	}
	return NameUpdate{Name: name, Owner: *p.Owner}, nil
}
