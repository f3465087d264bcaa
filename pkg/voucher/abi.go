package voucher

// escrowABI covers the subset of the deferred-payment escrow contract this
// store consumes: voucher collection plus the read-throughs used to answer
// buyer-account and settlement-state queries.
const escrowABI = `[
	{"type":"function","name":"collect","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"voucher","type":"tuple","components":[
			{"name":"id","type":"bytes32"},
			{"name":"buyer","type":"address"},
			{"name":"seller","type":"address"},
			{"name":"valueAggregate","type":"uint256"},
			{"name":"asset","type":"address"},
			{"name":"timestamp","type":"uint256"},
			{"name":"nonce","type":"uint256"},
			{"name":"escrow","type":"address"},
			{"name":"chainId","type":"uint256"}
		]},
		{"name":"signature","type":"bytes"}
	 ],
	 "outputs":[]},
	{"type":"function","name":"getAccount","stateMutability":"view",
	 "inputs":[{"name":"buyer","type":"address"}],
	 "outputs":[
		{"name":"balance","type":"uint256"},
		{"name":"thawingAmount","type":"uint256"},
		{"name":"thawEndTime","type":"uint256"}
	 ]},
	{"type":"function","name":"getSettledNonce","stateMutability":"view",
	 "inputs":[{"name":"id","type":"bytes32"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getCollectedValue","stateMutability":"view",
	 "inputs":[{"name":"id","type":"bytes32"}],
	 "outputs":[{"name":"","type":"uint256"}]}
]`
