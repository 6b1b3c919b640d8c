package repository

const (
	queryGetAbiByHash = `
		SELECT id, abi_hash, abi_json, relevance, source_id, created, modified
		FROM abis
		WHERE abi_hash = $1`

	queryInsertAbi = `
		INSERT INTO abis (abi_hash, abi_json, relevance, source_id, created, modified)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING id, abi_hash, abi_json, relevance, source_id, created, modified`

	queryStreamAbisByRelevance = `
		SELECT id, abi_hash, abi_json, relevance, source_id, created, modified
		FROM abis
		ORDER BY relevance ASC, id ASC`

	queryStreamAbisCreatedAfter = `
		SELECT id, abi_hash, abi_json, relevance, source_id, created, modified
		FROM abis
		WHERE created > $1
		ORDER BY relevance ASC, id ASC`

	queryLastAbiCreated = `
		SELECT COALESCE(MAX(created), 'epoch'::timestamptz)
		FROM abis`

	queryGetAbiSource = `
		SELECT id, name, url
		FROM abi_sources
		WHERE name = $1 AND url = $2`

	queryInsertAbiSource = `
		INSERT INTO abi_sources (name, url)
		VALUES ($1, $2)
		RETURNING id, name, url`

	contractColumns = `
		id, address, chain_id, name, display_name, description,
		trusted_for_delegate_call, implementation, fetch_retries,
		abi_id, project_id, created, modified`

	queryGetContract = `
		SELECT ` + contractColumns + `
		FROM contracts
		WHERE address = $1 AND chain_id = $2`

	queryInsertContract = `
		INSERT INTO contracts (address, chain_id, created, modified)
		VALUES ($1, $2, now(), now())
		RETURNING ` + contractColumns

	queryUpdateContract = `
		UPDATE contracts
		SET name = $1, display_name = $2, description = $3,
		    trusted_for_delegate_call = $4, implementation = $5,
		    fetch_retries = $6, abi_id = $7, project_id = $8,
		    modified = now()
		WHERE id = $9`

	queryUpdateContractInfo = `
		UPDATE contracts
		SET name = $1, display_name = $2, trusted_for_delegate_call = $3,
		    modified = now()
		WHERE address = $4`

	queryStreamContractsWithoutAbi = `
		SELECT ` + contractColumns + `
		FROM contracts
		WHERE abi_id IS NULL AND fetch_retries <= $1
		ORDER BY id ASC`

	queryStreamContractProxies = `
		SELECT ` + contractColumns + `
		FROM contracts
		WHERE implementation IS NOT NULL
		ORDER BY id ASC`

	queryAbiJSONForAddressChain = `
		SELECT a.abi_json
		FROM contracts c
		JOIN abis a ON a.id = c.abi_id
		WHERE c.address = $1 AND c.chain_id = $2`

	queryAbiJSONForAddress = `
		SELECT a.abi_json
		FROM contracts c
		JOIN abis a ON a.id = c.abi_id
		WHERE c.address = $1
		ORDER BY c.chain_id ASC
		LIMIT 1`

	contractListFilter = `
		WHERE ($1::bytea IS NULL OR c.address = $1)
		  AND ($2::bigint[] IS NULL OR c.chain_id = ANY($2))
		  AND ($3::boolean IS NULL OR c.trusted_for_delegate_call = $3)`

	queryCountContracts = `
		SELECT COUNT(*)
		FROM contracts c` + contractListFilter

	queryListContracts = `
		SELECT c.id, c.address, c.chain_id, c.name, c.display_name, c.description,
		       c.trusted_for_delegate_call, c.implementation, c.fetch_retries,
		       c.abi_id, c.project_id, c.created, c.modified,
		       a.abi_json, a.abi_hash, a.modified,
		       p.description, p.logo_file
		FROM contracts c
		LEFT JOIN abis a ON a.id = c.abi_id
		LEFT JOIN projects p ON p.id = c.project_id` + contractListFilter + `
		ORDER BY c.id DESC
		LIMIT $4 OFFSET $5`
)
