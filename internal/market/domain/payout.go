package domain

import "github.com/holiman/uint256"

// Cálculo parimutuel de payout. Função pura sobre os totais revelados;
// independente da camada confidencial. Todos os intermediários usam
// uint256 para que stake × pool nunca estoure no domínio uint64 cheio,
// e toda divisão trunca em direção a zero — o resto (dust) fica no vault.

// Fee calcula floor(total * feeBps / 10000). Com feeBps limitado a 1000
// na criação, fee nunca passa de 10% do total.
func Fee(revealedTotal uint64, feeBps uint16) uint64 {
	fee := new(uint256.Int).SetUint64(revealedTotal)
	fee.Mul(fee, uint256.NewInt(uint64(feeBps)))
	fee.Div(fee, uint256.NewInt(10_000))
	return fee.Uint64()
}

// Payout calcula o valor devido a um claim já validado contra o stake
// registrado:
//
//  1. claimedAmount ≠ stake registrado → ErrClaimMismatch (fatal p/ o claim)
//  2. lado perdedor → 0 (o stake já foi pro pool; não é devolvido)
//  3. senão floor(claimedAmount * (total − fee) / winning_pool);
//     winning_pool == 0 → 0 (ninguém apostou no lado vencedor; o valor
//     distribuível fica retido no vault)
func Payout(recordedStake uint64, claimedOutcome bool, claimedAmount uint64, winningOutcome bool, revealedYes, revealedNo, revealedTotal uint64, feeBps uint16) (uint64, error) {
	if claimedAmount != recordedStake {
		return 0, ErrClaimMismatch
	}
	if claimedOutcome != winningOutcome {
		return 0, nil
	}

	winningPool := revealedNo
	if winningOutcome {
		winningPool = revealedYes
	}
	if winningPool == 0 {
		return 0, nil
	}

	// distributable = total − fee; fee ≤ 10% do total por construção,
	// então a subtração nunca satura com entradas honestas
	distributable := revealedTotal - Fee(revealedTotal, feeBps)

	payout := new(uint256.Int).SetUint64(claimedAmount)
	payout.Mul(payout, new(uint256.Int).SetUint64(distributable))
	payout.Div(payout, new(uint256.Int).SetUint64(winningPool))
	if !payout.IsUint64() {
		return 0, ErrOverflow
	}
	return payout.Uint64(), nil
}
