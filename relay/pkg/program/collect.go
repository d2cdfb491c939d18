package program

import (
	"github.com/malbeclabs/orerelay/ledger/pkg/host"
	"github.com/malbeclabs/orerelay/ledger/pkg/mining"
	relayapi "github.com/malbeclabs/orerelay/relay/pkg/api"
	"github.com/malbeclabs/orerelay/relay/pkg/loaders"
	"github.com/malbeclabs/orerelay/relay/pkg/metrics"
)

// collect pays the relayer its commission once per accrual of an escrow. The
// escrow's watermark records the proof hash last collected against; a proof
// whose hash has not moved has nothing new to collect.
func (p *Program) collect(ictx *host.InvokeContext, accounts []*host.AccountInfo, _ []byte) error {
	if err := need(accounts, 9); err != nil {
		return err
	}
	signerAI, relayerAI, escrowAI, beneficiaryAI, proofAI := accounts[0], accounts[1], accounts[2], accounts[3], accounts[4]

	if err := loaders.LoadSigner(signerAI); err != nil {
		return err
	}
	relayer, err := loaders.LoadAnyRelayer(relayerAI, false)
	if err != nil {
		return err
	}
	if !signerAI.Key.Equals(relayer.Miner) {
		return relayapi.ErrNotAuthorized
	}
	escrow, err := loaders.LoadEscrowWithRelayer(escrowAI, relayerAI.Key, true)
	if err != nil {
		return err
	}
	if !beneficiaryAI.Key.Equals(relayer.Beneficiary) {
		return relayapi.ErrAuthorityMismatch
	}
	proof, err := loaders.LoadProof(proofAI, escrowAI.Key, true)
	if err != nil {
		return err
	}
	if err := requirePrograms(accounts[7:], tokenID, miningID); err != nil {
		return err
	}

	if escrow.LastHash == proof.LastHash {
		metrics.CommissionTotal.WithLabelValues(metrics.OutcomeAlreadyCollected).Inc()
		return relayapi.ErrAlreadyCollected
	}
	escrow.LastHash = proof.LastHash
	if err := escrowAI.SetData(escrow.Marshal()); err != nil {
		return err
	}

	// A skipped accrual still advances the watermark.
	if proof.Balance < relayer.Commission {
		ictx.Logf("%s: commission %d, balance %d", relayapi.LogCollectSkipped, relayer.Commission, proof.Balance)
		p.log.Debug("relay: collect skipped", "escrow", escrowAI.Key, "balance", proof.Balance, "commission", relayer.Commission)
		metrics.CommissionTotal.WithLabelValues(metrics.OutcomeSkipped).Inc()
		return nil
	}

	claim := mining.Claim(escrowAI.Key, beneficiaryAI.Key, relayer.Commission)
	if err := ictx.Invoke(claim, accounts, escrowSigner(escrow)); err != nil {
		return err
	}
	ictx.Logf("relay: collected %d from %s", relayer.Commission, escrowAI.Key)
	metrics.CommissionTotal.WithLabelValues(metrics.OutcomeCollected).Inc()
	metrics.CommissionPaid.Add(float64(relayer.Commission))
	return nil
}
