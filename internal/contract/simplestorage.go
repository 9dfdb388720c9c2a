package contract

// SimpleStorageABI is the ABI of the SimpleStorage contract deployed and
// verified on Goerli. It is the default contract this service talks to when
// no ABI file is configured.
const SimpleStorageABI = `[{"inputs":[],"name":"deleteNumber","outputs":[],"stateMutability":"nonpayable","type":"function"},{"inputs":[],"name":"getNumber","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},{"inputs":[{"internalType":"uint256","name":"_Number","type":"uint256"}],"name":"saveNumber","outputs":[],"stateMutability":"nonpayable","type":"function"}]`

// SimpleStorageAddress is the Goerli deployment the defaults point at.
const SimpleStorageAddress = "0x37b343ddb81d67A18476d01D6e74b25655fF4A0A"
