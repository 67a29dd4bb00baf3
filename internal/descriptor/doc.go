// Package descriptor reads and writes the cluster descriptor, the XML
// document every cell keeps describing the cells of the cluster, their
// endpoints, routing rules and service-tag data.
//
// The document is the source of truth for topology. Decode is strict and
// rejects a document with any structural violation instead of accepting
// part of it. Codec wraps the committed cell list with the mutation helpers
// used before a new descriptor version is written and handed to the
// membership layer for a cluster-wide commit.
//
// Server-side document:
//
//	<Multicell versionMajor="3">
//	  <Cell cellid="1" domainName="..." adminVIP="..." dataVIP="..." spVIP="..." subnet="..." gateway="...">
//	    <Rule originCellid="1" ruleId="1" start="0" end="32767" initialCapacity="0"></Rule>
//	    <ServiceTag productNum="" productSerialNum="" marketingNum="" instanceURN=""></ServiceTag>
//	  </Cell>
//	</Multicell>
//
// The client projection carries versionMajor and versionMinor on the root
// and only the identity and endpoint attributes of each cell.
package descriptor
