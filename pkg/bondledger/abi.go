package bondledger

// bondABI is the subset of the bond contract's ABI the facilitator packs
// and unpacks against.
const bondABI = `[
	{
		"constant": false,
		"inputs": [
			{"name": "id", "type": "bytes32"},
			{"name": "provider", "type": "address"},
			{"name": "amount", "type": "uint256"}
		],
		"name": "commitPayment",
		"outputs": [],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [{"name": "id", "type": "bytes32"}],
		"name": "releasePayment",
		"outputs": [],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [{"name": "id", "type": "bytes32"}],
		"name": "claimPayment",
		"outputs": [],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [],
		"name": "totalCommitted",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [],
		"name": "bondBalance",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	}
]`
