package ledger

import (
	"bytes"
	"fmt"

	"github.com/canopy-network/mocknet/lib"
	"github.com/canopy-network/mocknet/lib/crypto"
)

// checkResult carries what Apply() needs from a successful check
type checkResult struct {
	accounts map[string]Account // the debited input accounts
	fee      uint64
}

// Validate() checks the fragment against this snapshot without applying it
func (s *State) Validate(f *Fragment) lib.ErrorI {
	_, err := s.check(f)
	return err
}

// Apply() validates the fragment and returns the snapshot with the fragment applied. The receiver is never modified
func (s *State) Apply(f *Fragment) (*State, lib.ErrorI) {
	// validate the fragment and get the debited accounts
	result, err := s.check(f)
	if err != nil {
		return nil, err
	}
	next := s.clone()
	// debit the inputs
	for address, acc := range result.accounts {
		next.accounts[address] = acc
	}
	// credit the outputs
	for _, out := range f.Transaction.Outputs {
		key := out.Address.String()
		acc := next.accounts[key]
		acc.Value += out.Value
		next.accounts[key] = acc
	}
	// apply the certificate
	if c := f.Transaction.Certificate; c != nil {
		next.applyCertificate(c)
	}
	// extend the hash chain
	next.fragmentCount++
	next.id = crypto.Blake2b256(s.id, []byte(f.ID()))
	return next, nil
}

// ApplyAll() applies fragments in order, stopping at the first failure
func (s *State) ApplyAll(fragments ...*Fragment) (*State, lib.ErrorI) {
	next := s
	for _, f := range fragments {
		var err lib.ErrorI
		if next, err = next.Apply(f); err != nil {
			return nil, err
		}
	}
	return next, nil
}

// check() performs every stateless and stateful validation of a fragment
func (s *State) check(f *Fragment) (result *checkResult, err lib.ErrorI) {
	if f == nil || f.Transaction == nil {
		return nil, lib.ErrNoInputs()
	}
	tx := f.Transaction
	// basic shape validations
	if err = s.checkShape(tx); err != nil {
		return
	}
	// every input needs exactly one witness
	if len(f.Witnesses) != len(tx.Inputs) {
		return nil, lib.ErrMissingWitness(min(len(f.Witnesses), len(tx.Inputs)))
	}
	// the inputs must cover the outputs plus the minimum fee
	in, okIn := sumInputs(tx.Inputs)
	out, okOut := sumOutputs(tx.Outputs)
	if !okIn || !okOut {
		return nil, lib.ErrInvalidValue()
	}
	minimum := s.Fee(len(tx.Inputs), len(tx.Outputs), tx.Certificate != nil)
	if in < out || in-out < minimum {
		return nil, lib.ErrInsufficientFunds(out+minimum, in)
	}
	// the witnesses sign the body
	body := tx.Body()
	// debit the inputs on a scratch copy of the touched accounts
	accounts := make(map[string]Account)
	for i, input := range tx.Inputs {
		key := input.Address.String()
		acc, ok := accounts[key]
		if !ok {
			if acc, ok = s.accounts[key]; !ok {
				return nil, lib.ErrUnknownAccount(key)
			}
		}
		// the counter orders spends from the same account
		if input.SpendingCounter != acc.Counter {
			return nil, lib.ErrWrongSpendingCounter(key, acc.Counter, input.SpendingCounter)
		}
		if acc.Value < input.Value {
			return nil, lib.ErrInsufficientFunds(input.Value, acc.Value)
		}
		// the witness must be the spending key of the input
		if !s.checkWitness(input, f.Witnesses[i], body) {
			return nil, lib.ErrInvalidSignature(i)
		}
		acc.Value -= input.Value
		acc.Counter++
		accounts[key] = acc
	}
	// the credited accounts must not overflow
	credits := make(map[string]uint64)
	for _, output := range tx.Outputs {
		key := output.Address.String()
		balance, ok := credits[key]
		if !ok {
			acc, debited := accounts[key]
			if !debited {
				acc = s.accounts[key]
			}
			balance = acc.Value
		}
		if balance+output.Value < balance {
			return nil, lib.ErrInvalidValue()
		}
		credits[key] = balance + output.Value
	}
	// validate the certificate
	if c := tx.Certificate; c != nil {
		if err = s.checkCertificate(tx, c); err != nil {
			return
		}
	}
	return &checkResult{accounts: accounts, fee: in - out}, nil
}

// checkShape() performs the validations that don't need ledger state
func (s *State) checkShape(tx *Transaction) lib.ErrorI {
	if len(tx.Inputs) == 0 {
		return lib.ErrNoInputs()
	}
	if len(tx.Outputs) == 0 && tx.Certificate == nil {
		return lib.ErrNoOutputs()
	}
	for _, input := range tx.Inputs {
		if err := s.checkAddress(input.Address); err != nil {
			return err
		}
	}
	for _, out := range tx.Outputs {
		if err := s.checkAddress(out.Address); err != nil {
			return err
		}
		if out.Value == 0 {
			return lib.ErrInvalidValue()
		}
	}
	return nil
}

// checkAddress() ensures an address is present and belongs to this network
func (s *State) checkAddress(a *crypto.Address) lib.ErrorI {
	if a == nil {
		return lib.ErrInvalidValue()
	}
	if a.Discrimination != s.params.Discrimination {
		return lib.ErrDiscriminationMismatch()
	}
	return nil
}

// checkWitness() verifies the witness key owns the input address and signed the body at the input's counter
func (s *State) checkWitness(input Input, w Witness, body []byte) bool {
	if !bytes.Equal(w.PublicKey, input.Address.Spending) || input.Address.Kind == crypto.Multisig {
		return false
	}
	pub, err := crypto.NewPublicKeyFromBytes(crypto.Ed25519, w.PublicKey)
	if err != nil {
		return false
	}
	return pub.VerifyBytes(signData(s.genesisHash, input.SpendingCounter, body), w.Signature)
}

// checkCertificate() validates a certificate against the snapshot
func (s *State) checkCertificate(tx *Transaction, c CertificateI) lib.ErrorI {
	// the signer must fund the transaction, which makes its witness the authorization
	signer := c.Signer()
	if signer == nil {
		return lib.ErrInvalidCertificate("missing signer")
	}
	funded := false
	for _, input := range tx.Inputs {
		if input.Address.Equals(signer) {
			funded = true
			break
		}
	}
	if !funded {
		return lib.ErrInvalidCertificate(fmt.Sprintf("%s does not fund the certificate", signer))
	}
	switch cert := c.(type) {
	case *StakeDelegation:
		if _, ok := s.pools[cert.PoolID]; !ok {
			return lib.ErrPoolNotFound(cert.PoolID)
		}
	case *PoolRegistration:
		if cert.MarginPercent > 100 {
			return lib.ErrInvalidCertificate("margin above 100 percent")
		}
		if _, ok := s.pools[cert.PoolID()]; ok {
			return lib.ErrPoolExists(cert.PoolID())
		}
	case *PoolRetirement:
		pool, ok := s.pools[cert.PoolID]
		if !ok {
			return lib.ErrPoolNotFound(cert.PoolID)
		}
		if !pool.Owner.Equals(cert.Owner) {
			return lib.ErrInvalidCertificate("only the owner may retire a pool")
		}
	case *VotePlan:
		if !s.IsCommitteeMember(cert.Proposer) {
			return lib.ErrInvalidCertificate(fmt.Sprintf("%s is not a committee member", cert.Proposer))
		}
		return s.checkVotePlan(cert)
	case *VoteCast:
		plan, ok := s.plans[cert.PlanID]
		if !ok {
			return lib.ErrVotePlanNotFound(cert.PlanID)
		}
		if s.date.Before(plan.Plan.VoteStart) || !s.date.Before(plan.Plan.VoteEnd) {
			return lib.ErrVoteOutsideWindow(cert.PlanID)
		}
		if int(cert.Proposal) >= len(plan.Plan.Options) {
			return lib.ErrInvalidCertificate(fmt.Sprintf("plan has no proposal %d", cert.Proposal))
		}
		if options := plan.Plan.Options[cert.Proposal]; cert.Choice >= options {
			return lib.ErrInvalidChoice(cert.Choice, options)
		}
		if _, voted := plan.Voters[voterKey(cert)]; voted {
			return lib.ErrInvalidCertificate("already voted on this proposal")
		}
	default:
		return lib.ErrUnknownCertificate(c.Kind().String())
	}
	return nil
}

// checkVotePlan() validates the plan parameters and uniqueness
func (s *State) checkVotePlan(plan *VotePlan) lib.ErrorI {
	if plan == nil || plan.Proposer == nil {
		return lib.ErrInvalidCertificate("missing proposer")
	}
	if !plan.VoteStart.Before(plan.VoteEnd) {
		return lib.ErrInvalidCertificate("vote start must precede vote end")
	}
	if len(plan.Options) == 0 {
		return lib.ErrInvalidCertificate("vote plan without proposals")
	}
	for _, options := range plan.Options {
		if options == 0 || options > 255 {
			return lib.ErrInvalidCertificate("proposals need between 1 and 255 options")
		}
	}
	if _, ok := s.plans[plan.ID()]; ok {
		return lib.ErrVotePlanExists(plan.ID())
	}
	return nil
}

// applyCertificate() records the effect of an already checked certificate on a cloned snapshot
func (s *State) applyCertificate(c CertificateI) {
	switch cert := c.(type) {
	case *StakeDelegation:
		key := cert.Account.String()
		acc := s.accounts[key]
		acc.Delegation = cert.PoolID
		s.accounts[key] = acc
	case *PoolRegistration:
		s.pools[cert.PoolID()] = StakePool{ID: cert.PoolID(), Owner: cert.Owner, MarginPercent: cert.MarginPercent}
	case *PoolRetirement:
		delete(s.pools, cert.PoolID)
		// delegations to a retired pool lapse
		for key, acc := range s.accounts {
			if acc.Delegation == cert.PoolID {
				acc.Delegation = ""
				s.accounts[key] = acc
			}
		}
	case *VotePlan:
		s.plans[cert.ID()] = newVotePlanStatus(cert)
	case *VoteCast:
		plan := s.plans[cert.PlanID].copy()
		// public votes weigh the voter's remaining stake, at least one
		weight := max(s.accounts[cert.Voter.String()].Value, 1)
		plan.Tally[cert.Proposal][cert.Choice] += weight
		plan.Voters[voterKey(cert)] = struct{}{}
		s.plans[cert.PlanID] = plan
	}
}

func voterKey(c *VoteCast) string { return fmt.Sprintf("%s/%d", c.Voter, c.Proposal) }
